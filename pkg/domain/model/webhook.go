package model

import "time"

// WebhookEventType represents the type of webhook event received
type WebhookEventType string

const (
	EventTypePullRequest WebhookEventType = "pull_request"
	EventTypeRelease     WebhookEventType = "release"
	EventTypePush        WebhookEventType = "push"
	EventTypeUnknown     WebhookEventType = "unknown"
)

// WebhookEvent is a repository change notification that may make a cached
// result stale
type WebhookEvent struct {
	ID         string           // Retrieved from X-GitHub-Delivery header
	Type       WebhookEventType // Retrieved from X-GitHub-Event header
	Action     string           // Event action (e.g., closed, published)
	Repository RepositoryRef
	Sender     string
	Merged     bool   // pull_request only
	Ref        string // push only, e.g. refs/heads/main
	DefaultRef string // push only, default branch as a full ref
	ReceivedAt time.Time
}

// ChangesDelta reports whether the event moves the release marker or adds
// history after it
func (e *WebhookEvent) ChangesDelta() bool {
	switch e.Type {
	case EventTypePullRequest:
		return e.Action == "closed" && e.Merged
	case EventTypeRelease:
		switch e.Action {
		case "published", "released", "deleted", "edited":
			return true
		}
		return false
	case EventTypePush:
		return e.Ref != "" && e.Ref == e.DefaultRef
	default:
		return false
	}
}
