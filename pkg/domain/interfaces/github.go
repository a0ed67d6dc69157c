package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// BatchItem is the outcome of one repository inside a combined query.
// Either Snapshot or Err is set.
type BatchItem struct {
	Snapshot *model.RepositorySnapshot
	Err      error
}

// GitHubClient defines read operations against the GitHub API. Every call
// is made on behalf of the given credential.
type GitHubClient interface {
	// BatchQuery reads release, tag, history and merged pull requests of all
	// repos in one combined request. Items are returned in the order of repos.
	// An error is returned only when the request as a whole failed.
	BatchQuery(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, commits, prs int) ([]BatchItem, error)

	// LatestRelease returns the latest published release, or an error tagged
	// model.ErrTagNotFound when the repository has none.
	LatestRelease(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error)

	// LatestTag returns the most recent tag dated by its target commit, or nil
	// when the repository has no tags.
	LatestTag(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error)

	// CommitsSince lists up to limit default branch commits after since
	CommitsSince(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.Commit, error)

	// MergedPullRequestsSince lists up to limit pull requests merged after since
	MergedPullRequestsSince(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.PullRequest, error)
}

// OrgMembership defines the calls the access gate needs to verify a credential
type OrgMembership interface {
	CurrentUser(ctx context.Context, cred model.Credential) (*model.Identity, error)
	IsOrgMember(ctx context.Context, cred model.Credential, org, login string) (bool, error)
	ListUserOrgs(ctx context.Context, cred model.Credential) ([]string, error)
	CanListPrivateOrgRepos(ctx context.Context, cred model.Credential, org string) (bool, error)
}

// CredentialSource supplies the server's own credential, used for background
// refreshes and the CLI
type CredentialSource interface {
	Credential(ctx context.Context) (model.Credential, error)
}
