package model

import "time"

// DisplayLimit is the maximum number of commits and pull requests kept in a result
const DisplayLimit = 10

// NoReleaseMessage is reported for repositories without releases and tags
const NoReleaseMessage = "No releases or tags found"

// ResultStatus tells which variant a RepositoryResult holds
type ResultStatus string

const (
	// StatusReleased means a release marker was resolved and the delta computed
	StatusReleased ResultStatus = "released"
	// StatusNoRelease means the repository has neither releases nor tags
	StatusNoRelease ResultStatus = "no_release"
	// StatusFailed means live retrieval failed and no cached data was available
	StatusFailed ResultStatus = "error"
)

// RepositoryResult is the unit of cache storage and API response.
// Exactly one variant is populated, selected by Status.
type RepositoryResult struct {
	Status ResultStatus `json:"status"`
	Owner  string       `json:"owner"`
	Repo   string       `json:"repo"`

	// StatusReleased
	Release      *ReleaseMarker `json:"release"`
	HasChanges   bool           `json:"hasChanges"`
	CommitsCount int            `json:"commitsCount"`
	PRsCount     int            `json:"prsCount"`
	Commits      []Commit       `json:"commits"`
	PRs          []PullRequest  `json:"prs"`

	// StatusNoRelease carries NoReleaseMessage; StatusFailed the failure reason
	Error      string    `json:"error,omitempty"`
	ErrorKind  ErrorKind `json:"errorKind,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`

	FetchedAt time.Time `json:"fetchedAt"`
}

// Ref returns the repository the result belongs to
func (r *RepositoryResult) Ref() RepositoryRef {
	return RepositoryRef{Owner: r.Owner, Name: r.Repo}
}

// IsError reports whether the result is the error variant
func (r *RepositoryResult) IsError() bool {
	return r.Status == StatusFailed
}

// Clone returns a deep copy so cached entries can't be mutated by callers
func (r *RepositoryResult) Clone() *RepositoryResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Release != nil {
		rel := *r.Release
		c.Release = &rel
	}
	c.Commits = append([]Commit{}, r.Commits...)
	c.PRs = append([]PullRequest{}, r.PRs...)
	return &c
}

// NewReleasedResult builds the released variant. commitsCount and prsCount are
// the counts before truncation; the lists are expected to be truncated already.
func NewReleasedResult(repo RepositoryRef, marker ReleaseMarker, commits []Commit, prs []PullRequest, commitsCount, prsCount int, now time.Time) *RepositoryResult {
	if commits == nil {
		commits = []Commit{}
	}
	if prs == nil {
		prs = []PullRequest{}
	}
	return &RepositoryResult{
		Status:       StatusReleased,
		Owner:        repo.Owner,
		Repo:         repo.Name,
		Release:      &marker,
		HasChanges:   commitsCount > 0 || prsCount > 0,
		CommitsCount: commitsCount,
		PRsCount:     prsCount,
		Commits:      commits,
		PRs:          prs,
		FetchedAt:    now,
	}
}

// NewNoReleaseResult builds the variant for repositories without releases or tags
func NewNoReleaseResult(repo RepositoryRef, now time.Time) *RepositoryResult {
	return &RepositoryResult{
		Status:    StatusNoRelease,
		Owner:     repo.Owner,
		Repo:      repo.Name,
		Commits:   []Commit{},
		PRs:       []PullRequest{},
		Error:     NoReleaseMessage,
		FetchedAt: now,
	}
}

// NewErrorResult builds the error variant
func NewErrorResult(repo RepositoryRef, kind ErrorKind, message string, statusCode int, now time.Time) *RepositoryResult {
	return &RepositoryResult{
		Status:     StatusFailed,
		Owner:      repo.Owner,
		Repo:       repo.Name,
		Commits:    []Commit{},
		PRs:        []PullRequest{},
		Error:      message,
		ErrorKind:  kind,
		StatusCode: statusCode,
		FetchedAt:  now,
	}
}
