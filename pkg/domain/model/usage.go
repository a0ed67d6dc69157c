package model

import "time"

// RateLimitPerHour is the hourly request quota of the remote API for an authenticated caller
const RateLimitPerHour = 5000

// RateUsage is a snapshot of outbound remote calls in the current hourly window
type RateUsage struct {
	Used           int       `json:"used"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	Percentage     int       `json:"percentage"`
	ResetInMinutes int       `json:"resetInMinutes"`
	ResetAt        time.Time `json:"resetAt"`
}
