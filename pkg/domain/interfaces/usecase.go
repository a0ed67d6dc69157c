package interfaces

//go:generate moq -out mocks/usecase_mock.go -pkg mocks . DashboardUseCase AccessUseCase WebhookUseCase

import (
	"context"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// DashboardUseCase is what the presentation layer calls
type DashboardUseCase interface {
	// FetchAll returns one result per repository in input order
	FetchAll(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, forceRefresh bool) ([]*model.RepositoryResult, error)

	// Usage returns the current outbound call budget
	Usage() model.RateUsage
}

// AccessUseCase authorizes a caller-held credential
type AccessUseCase interface {
	// Authorize returns the identity behind cred if it belongs to a member of
	// the configured organization
	Authorize(ctx context.Context, cred model.Credential) (*model.Identity, error)
}

// WebhookUseCase reacts to repository change notifications
type WebhookUseCase interface {
	ProcessEvent(ctx context.Context, event *model.WebhookEvent) error
}
