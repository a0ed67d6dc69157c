package http_test

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

type mockDashboard struct {
	FetchAllFunc func(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, forceRefresh bool) ([]*model.RepositoryResult, error)
	UsageFunc    func() model.RateUsage
}

func (m *mockDashboard) FetchAll(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, forceRefresh bool) ([]*model.RepositoryResult, error) {
	if m.FetchAllFunc != nil {
		return m.FetchAllFunc(ctx, cred, repos, forceRefresh)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockDashboard) Usage() model.RateUsage {
	if m.UsageFunc != nil {
		return m.UsageFunc()
	}
	return model.RateUsage{}
}

type mockAccess struct {
	AuthorizeFunc func(ctx context.Context, cred model.Credential) (*model.Identity, error)
}

func (m *mockAccess) Authorize(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, cred)
	}
	return nil, errors.New("mock not configured")
}

// memberAccess admits only the "member-token" credential
func memberAccess() *mockAccess {
	return &mockAccess{
		AuthorizeFunc: func(ctx context.Context, cred model.Credential) (*model.Identity, error) {
			switch cred {
			case "member-token":
				return &model.Identity{ID: 1, Login: "alice", Name: "Alice"}, nil
			case "outsider-token":
				return nil, goerr.New("not a member", goerr.T(model.ErrTagForbidden))
			default:
				return nil, goerr.New("bad credentials", goerr.T(model.ErrTagAuth))
			}
		},
	}
}

type mockWebhook struct {
	mu     sync.Mutex
	events []*model.WebhookEvent
	err    error
}

func (m *mockWebhook) ProcessEvent(ctx context.Context, event *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}
