package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// ReleaseResolver determines the marker new changes are measured from
type ReleaseResolver struct {
	client interfaces.GitHubClient
}

// NewReleaseResolver creates a new instance of ReleaseResolver
func NewReleaseResolver(client interfaces.GitHubClient) *ReleaseResolver {
	return &ReleaseResolver{client: client}
}

// Resolve returns the latest release of repo, or its latest tag when there is
// no release. It returns nil without error when the repository has neither.
func (r *ReleaseResolver) Resolve(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error) {
	logger := ctxlog.From(ctx)

	release, err := r.client.LatestRelease(ctx, cred, repo)
	if err == nil {
		return release, nil
	}
	if !goerr.HasTag(err, model.ErrTagNotFound) {
		return nil, goerr.Wrap(err, "failed to resolve latest release", goerr.V("repo", repo.Key()))
	}

	logger.Debug("No release found, falling back to tags", "repo", repo.Key())

	tag, err := r.client.LatestTag(ctx, cred, repo)
	if err != nil {
		if goerr.HasTag(err, model.ErrTagNotFound) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to resolve latest tag", goerr.V("repo", repo.Key()))
	}

	return tag, nil
}

// MarkerFromSnapshot applies the release-then-tag preference to data that was
// already fetched. It returns nil when the snapshot has neither.
func MarkerFromSnapshot(snap *model.RepositorySnapshot) *model.ReleaseMarker {
	if snap == nil {
		return nil
	}
	if snap.LatestRelease != nil {
		marker := *snap.LatestRelease
		return &marker
	}
	if snap.LatestTag != nil {
		marker := *snap.LatestTag
		return &marker
	}
	return nil
}
