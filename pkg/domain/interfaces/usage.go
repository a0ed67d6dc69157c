package interfaces

import "github.com/m-mizutani/relwatch/pkg/domain/model"

// UsageReporter reports outbound call consumption of the current hourly window
type UsageReporter interface {
	Usage() model.RateUsage
}
