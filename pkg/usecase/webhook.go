package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/utils/async"
)

// Dispatcher runs handler outside of the request lifetime
type Dispatcher func(ctx context.Context, handler func(ctx context.Context) error)

type webhookUseCase struct {
	dashboard interfaces.DashboardUseCase
	creds     interfaces.CredentialSource
	tracked   map[string]model.RepositoryRef
	dispatch  Dispatcher
}

var _ interfaces.WebhookUseCase = (*webhookUseCase)(nil)

// WebhookOption is a functional option for the webhook use case
type WebhookOption func(*webhookUseCase)

// WithDispatcher replaces async.Dispatch
func WithDispatcher(d Dispatcher) WebhookOption {
	return func(uc *webhookUseCase) {
		uc.dispatch = d
	}
}

// NewWebhook creates a new instance of WebhookUseCase. Only events of
// tracked repositories trigger a refresh, made with the server credential.
func NewWebhook(dashboard interfaces.DashboardUseCase, creds interfaces.CredentialSource, tracked []model.RepositoryRef, opts ...WebhookOption) *webhookUseCase {
	uc := &webhookUseCase{
		dashboard: dashboard,
		creds:     creds,
		tracked:   make(map[string]model.RepositoryRef, len(tracked)),
		dispatch:  async.Dispatch,
	}
	for _, repo := range tracked {
		// GitHub reports the canonical case; configured names may differ
		uc.tracked[strings.ToLower(repo.Key())] = repo
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessEvent refreshes the cached result of the event's repository when the
// event changes its release delta
func (uc *webhookUseCase) ProcessEvent(ctx context.Context, event *model.WebhookEvent) error {
	logger := ctxlog.From(ctx)

	logger.Info("Processing webhook event",
		"id", event.ID,
		"type", event.Type,
		"action", event.Action,
		"repository", event.Repository.Key(),
		"sender", event.Sender,
	)

	if !event.ChangesDelta() {
		logger.Debug("Event does not affect release delta", "type", event.Type, "action", event.Action)
		return nil
	}

	repo, ok := uc.tracked[strings.ToLower(event.Repository.Key())]
	if !ok {
		logger.Debug("Event for untracked repository", "repository", event.Repository.Key())
		return nil
	}

	uc.dispatch(ctx, func(ctx context.Context) error {
		return uc.refresh(ctx, repo, event.ID)
	})
	return nil
}

func (uc *webhookUseCase) refresh(ctx context.Context, repo model.RepositoryRef, deliveryID string) error {
	cred, err := uc.creds.Credential(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to get server credential", goerr.V("repo", repo.Key()))
	}

	results, err := uc.dashboard.FetchAll(ctx, cred, []model.RepositoryRef{repo}, true)
	if err != nil {
		return goerr.Wrap(err, "failed to refresh repository",
			goerr.V("repo", repo.Key()),
			goerr.V("delivery_id", deliveryID),
		)
	}

	for _, r := range results {
		ctxlog.From(ctx).Info("Refreshed repository from webhook",
			"repo", r.Ref().Key(),
			"status", r.Status,
			"commits", r.CommitsCount,
			"prs", r.PRsCount,
			"delivery_id", deliveryID,
		)
	}
	return nil
}
