package usecase_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// mockGitHubClient is a hand-written GitHubClient. Unset functions fail.
type mockGitHubClient struct {
	BatchQueryFunc              func(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, commits, prs int) ([]interfaces.BatchItem, error)
	LatestReleaseFunc           func(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error)
	LatestTagFunc               func(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error)
	CommitsSinceFunc            func(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.Commit, error)
	MergedPullRequestsSinceFunc func(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.PullRequest, error)

	mu           sync.Mutex
	batchCalls   [][]model.RepositoryRef
	restCalls    int
	releaseCalls int
	tagCalls     int
}

var errNotConfigured = errors.New("mock not configured")

func (m *mockGitHubClient) BatchQuery(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, commits, prs int) ([]interfaces.BatchItem, error) {
	m.mu.Lock()
	m.batchCalls = append(m.batchCalls, append([]model.RepositoryRef{}, repos...))
	m.mu.Unlock()
	if m.BatchQueryFunc != nil {
		return m.BatchQueryFunc(ctx, cred, repos, commits, prs)
	}
	return nil, errNotConfigured
}

func (m *mockGitHubClient) LatestRelease(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error) {
	m.mu.Lock()
	m.restCalls++
	m.releaseCalls++
	m.mu.Unlock()
	if m.LatestReleaseFunc != nil {
		return m.LatestReleaseFunc(ctx, cred, repo)
	}
	return nil, errNotConfigured
}

func (m *mockGitHubClient) LatestTag(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error) {
	m.mu.Lock()
	m.restCalls++
	m.tagCalls++
	m.mu.Unlock()
	if m.LatestTagFunc != nil {
		return m.LatestTagFunc(ctx, cred, repo)
	}
	return nil, errNotConfigured
}

func (m *mockGitHubClient) CommitsSince(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.Commit, error) {
	m.mu.Lock()
	m.restCalls++
	m.mu.Unlock()
	if m.CommitsSinceFunc != nil {
		return m.CommitsSinceFunc(ctx, cred, repo, since, limit)
	}
	return nil, errNotConfigured
}

func (m *mockGitHubClient) MergedPullRequestsSince(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.PullRequest, error) {
	m.mu.Lock()
	m.restCalls++
	m.mu.Unlock()
	if m.MergedPullRequestsSinceFunc != nil {
		return m.MergedPullRequestsSinceFunc(ctx, cred, repo, since, limit)
	}
	return nil, errNotConfigured
}

func (m *mockGitHubClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batchCalls) + m.restCalls
}

// mockOrgMembership is a hand-written OrgMembership
type mockOrgMembership struct {
	CurrentUserFunc            func(ctx context.Context, cred model.Credential) (*model.Identity, error)
	IsOrgMemberFunc            func(ctx context.Context, cred model.Credential, org, login string) (bool, error)
	ListUserOrgsFunc           func(ctx context.Context, cred model.Credential) ([]string, error)
	CanListPrivateOrgReposFunc func(ctx context.Context, cred model.Credential, org string) (bool, error)

	calls int
}

func (m *mockOrgMembership) CurrentUser(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	m.calls++
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx, cred)
	}
	return nil, errNotConfigured
}

func (m *mockOrgMembership) IsOrgMember(ctx context.Context, cred model.Credential, org, login string) (bool, error) {
	m.calls++
	if m.IsOrgMemberFunc != nil {
		return m.IsOrgMemberFunc(ctx, cred, org, login)
	}
	return false, nil
}

func (m *mockOrgMembership) ListUserOrgs(ctx context.Context, cred model.Credential) ([]string, error) {
	m.calls++
	if m.ListUserOrgsFunc != nil {
		return m.ListUserOrgsFunc(ctx, cred)
	}
	return nil, nil
}

func (m *mockOrgMembership) CanListPrivateOrgRepos(ctx context.Context, cred model.Credential, org string) (bool, error) {
	m.calls++
	if m.CanListPrivateOrgReposFunc != nil {
		return m.CanListPrivateOrgReposFunc(ctx, cred, org)
	}
	return false, nil
}

// countingCache records puts of the wrapped cache
type countingCache struct {
	interfaces.ResultCache
	mu   sync.Mutex
	puts int
}

func (c *countingCache) Put(ctx context.Context, result *model.RepositoryResult) {
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	c.ResultCache.Put(ctx, result)
}

func (c *countingCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func statusErr(code int, msg string) error {
	return goerr.Wrap(&model.StatusError{Code: code, Message: msg}, "mock remote failure",
		model.TagForStatus(code, msg),
	)
}
