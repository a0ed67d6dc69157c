package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

const (
	shortSHALength = 7
	unknownAuthor  = "Unknown"
)

// Delta is the set of changes after a release marker. Commits and PRs hold
// at most model.DisplayLimit entries, newest first; the counts are taken
// before truncation.
type Delta struct {
	Commits      []model.Commit
	PRs          []model.PullRequest
	CommitsCount int
	PRsCount     int
}

// Result builds the released result of repo
func (d *Delta) Result(repo model.RepositoryRef, marker model.ReleaseMarker, now time.Time) *model.RepositoryResult {
	return model.NewReleasedResult(repo, marker, d.Commits, d.PRs, d.CommitsCount, d.PRsCount, now)
}

// ComputeDelta keeps commits and pull requests strictly newer than the marker
func ComputeDelta(marker model.ReleaseMarker, commits []model.Commit, prs []model.PullRequest) *Delta {
	newCommits := make([]model.Commit, 0, len(commits))
	for _, c := range commits {
		if !c.Date.After(marker.Date) {
			continue
		}
		c.SHA = shortSHA(c.SHA)
		c.Message = firstLine(c.Message)
		if c.Author == "" {
			c.Author = unknownAuthor
		}
		newCommits = append(newCommits, c)
	}
	sort.SliceStable(newCommits, func(i, j int) bool {
		return newCommits[i].Date.After(newCommits[j].Date)
	})

	newPRs := make([]model.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if !pr.MergedAt.After(marker.Date) {
			continue
		}
		if pr.Author == "" {
			pr.Author = unknownAuthor
		}
		newPRs = append(newPRs, pr)
	}
	sort.SliceStable(newPRs, func(i, j int) bool {
		return newPRs[i].MergedAt.After(newPRs[j].MergedAt)
	})

	d := &Delta{
		CommitsCount: len(newCommits),
		PRsCount:     len(newPRs),
		Commits:      newCommits,
		PRs:          newPRs,
	}
	if len(d.Commits) > model.DisplayLimit {
		d.Commits = d.Commits[:model.DisplayLimit]
	}
	if len(d.PRs) > model.DisplayLimit {
		d.PRs = d.PRs[:model.DisplayLimit]
	}
	return d
}

func shortSHA(sha string) string {
	if len(sha) > shortSHALength {
		return sha[:shortSHALength]
	}
	return sha
}

func firstLine(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return strings.TrimRight(line, "\r")
}

// DeltaFetcher reads commits and merged pull requests after a marker with
// individual REST calls
type DeltaFetcher struct {
	client   interfaces.GitHubClient
	pageSize int
}

// NewDeltaFetcher creates a new instance of DeltaFetcher. pageSize bounds
// both lists.
func NewDeltaFetcher(client interfaces.GitHubClient, pageSize int) *DeltaFetcher {
	return &DeltaFetcher{client: client, pageSize: pageSize}
}

// Fetch retrieves both lists concurrently and computes the delta against marker
func (f *DeltaFetcher) Fetch(ctx context.Context, cred model.Credential, repo model.RepositoryRef, marker model.ReleaseMarker) (*Delta, error) {
	var commits []model.Commit
	var prs []model.PullRequest

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		commits, err = f.client.CommitsSince(egCtx, cred, repo, marker.Date, f.pageSize)
		return err
	})
	eg.Go(func() error {
		var err error
		prs, err = f.client.MergedPullRequestsSince(egCtx, cred, repo, marker.Date, f.pageSize)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch changes since release",
			goerr.V("repo", repo.Key()),
			goerr.V("since", marker.Date),
		)
	}

	return ComputeDelta(marker, commits, prs), nil
}
