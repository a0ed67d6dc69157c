package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// maxPerPage is the largest page size the REST API accepts
const maxPerPage = 100

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPerPage {
		return maxPerPage
	}
	return limit
}

// LatestRelease returns the latest published release of repo
func (c *Client) LatestRelease(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error) {
	release, _, err := c.rest(ctx, cred).Repositories.GetLatestRelease(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, wrapError(err, "failed to get latest release", repo)
	}

	date := release.GetPublishedAt().Time
	if date.IsZero() {
		date = release.GetCreatedAt().Time
	}

	return &model.ReleaseMarker{
		Tag:  release.GetTagName(),
		Date: date,
		Name: release.GetName(),
		URL:  release.GetHTMLURL(),
	}, nil
}

// LatestTag returns the first tag of repo, dated by the commit it points to.
// Annotated tags are dereferenced to their target commit.
func (c *Client) LatestTag(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.ReleaseMarker, error) {
	client := c.rest(ctx, cred)

	tags, _, err := client.Repositories.ListTags(ctx, repo.Owner, repo.Name, &github.ListOptions{PerPage: 1})
	if err != nil {
		return nil, wrapError(err, "failed to list tags", repo)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	name := tags[0].GetName()

	ref, _, err := client.Git.GetRef(ctx, repo.Owner, repo.Name, "tags/"+name)
	if err != nil {
		return nil, wrapError(err, "failed to get tag ref", repo)
	}

	sha := ref.GetObject().GetSHA()
	if ref.GetObject().GetType() == "tag" {
		tag, _, err := client.Git.GetTag(ctx, repo.Owner, repo.Name, sha)
		if err != nil {
			return nil, wrapError(err, "failed to dereference annotated tag", repo)
		}
		sha = tag.GetObject().GetSHA()
	}

	commit, _, err := client.Git.GetCommit(ctx, repo.Owner, repo.Name, sha)
	if err != nil {
		return nil, wrapError(err, "failed to get tagged commit", repo)
	}

	date := commit.GetCommitter().GetDate().Time
	if date.IsZero() {
		return nil, goerr.New("tagged commit has no committer date",
			goerr.T(model.ErrTagUpstream),
			goerr.V("repo", repo.Key()),
			goerr.V("tag", name),
		)
	}

	return &model.ReleaseMarker{
		Tag:  name,
		Date: date,
		Name: name,
		URL:  model.TagURL(repo, name),
	}, nil
}

// CommitsSince lists default branch commits after since. SHAs and messages
// are returned in full.
func (c *Client) CommitsSince(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.Commit, error) {
	opts := &github.CommitsListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: pageSize(limit)},
	}
	commits, _, err := c.rest(ctx, cred).Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, wrapError(err, "failed to list commits", repo)
	}

	result := make([]model.Commit, 0, len(commits))
	for _, rc := range commits {
		date := rc.GetCommit().GetCommitter().GetDate().Time
		if date.IsZero() {
			date = rc.GetCommit().GetAuthor().GetDate().Time
		}
		url := rc.GetHTMLURL()
		if url == "" {
			url = model.CommitURL(repo, rc.GetSHA())
		}
		result = append(result, model.Commit{
			SHA:     rc.GetSHA(),
			Message: rc.GetCommit().GetMessage(),
			Author:  rc.GetCommit().GetAuthor().GetName(),
			Date:    date,
			URL:     url,
		})
	}

	return result, nil
}

// MergedPullRequestsSince searches pull requests merged at or after since,
// most recently updated first
func (c *Client) MergedPullRequestsSince(ctx context.Context, cred model.Credential, repo model.RepositoryRef, since time.Time, limit int) ([]model.PullRequest, error) {
	query := fmt.Sprintf("repo:%s is:pr is:merged merged:>=%s", repo.Key(), since.UTC().Format(time.RFC3339))
	opts := &github.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: pageSize(limit)},
	}

	found, _, err := c.rest(ctx, cred).Search.Issues(ctx, query, opts)
	if err != nil {
		return nil, wrapError(err, "failed to search merged pull requests", repo)
	}

	result := make([]model.PullRequest, 0, len(found.Issues))
	for _, issue := range found.Issues {
		mergedAt := issue.GetPullRequestLinks().GetMergedAt().Time
		if mergedAt.IsZero() {
			continue
		}
		result = append(result, model.PullRequest{
			Number:   issue.GetNumber(),
			Title:    issue.GetTitle(),
			MergedAt: mergedAt,
			Author:   issue.GetUser().GetLogin(),
			URL:      issue.GetHTMLURL(),
		})
	}

	return result, nil
}
