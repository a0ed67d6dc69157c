package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// RepositoryRef identifies a repository on the remote code host
type RepositoryRef struct {
	Owner string `json:"owner" yaml:"owner" toml:"owner"`
	Name  string `json:"repo" yaml:"name" toml:"name"`
}

// Key returns the cache key of the repository. Case is preserved as given.
func (r RepositoryRef) Key() string {
	return r.Owner + "/" + r.Name
}

func (r RepositoryRef) String() string {
	return r.Key()
}

// Validate checks that both owner and name are present
func (r RepositoryRef) Validate() error {
	if r.Owner == "" || r.Name == "" {
		return goerr.New("repository owner and name are required",
			goerr.V("owner", r.Owner),
			goerr.V("name", r.Name),
		)
	}
	if strings.Contains(r.Owner, "/") || strings.Contains(r.Name, "/") {
		return goerr.New("repository owner and name must not contain '/'",
			goerr.V("owner", r.Owner),
			goerr.V("name", r.Name),
		)
	}
	return nil
}

// ParseRepositoryRef parses "owner/name". When s has no owner part,
// defaultOwner is used.
func ParseRepositoryRef(s, defaultOwner string) (RepositoryRef, error) {
	s = strings.TrimSpace(s)
	owner, name, found := strings.Cut(s, "/")
	if !found {
		owner, name = defaultOwner, s
	}

	ref := RepositoryRef{Owner: owner, Name: name}
	if err := ref.Validate(); err != nil {
		return RepositoryRef{}, goerr.Wrap(err, "invalid repository reference", goerr.V("input", s))
	}
	return ref, nil
}

// ReleaseMarker is the boundary used to classify history as new. It comes from
// the latest published release or, when there is none, from the latest tag.
type ReleaseMarker struct {
	Tag  string    `json:"tag"`
	Date time.Time `json:"date"`
	Name string    `json:"name"`
	URL  string    `json:"url"`
}

// Commit is a commit on the default branch
type Commit struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url"`
}

// PullRequest is a merged pull request
type PullRequest struct {
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	MergedAt time.Time `json:"mergedAt"`
	Author   string    `json:"author"`
	URL      string    `json:"url"`
}

// RepositorySnapshot is the raw data read for one repository in a single
// remote round trip. Lists are bounded by the requested page sizes.
type RepositorySnapshot struct {
	Repo          RepositoryRef
	LatestRelease *ReleaseMarker
	LatestTag     *ReleaseMarker
	Commits       []Commit
	PullRequests  []PullRequest
}

// TagURL returns the web URL of a tag's release page
func TagURL(repo RepositoryRef, tag string) string {
	return "https://github.com/" + repo.Owner + "/" + repo.Name + "/releases/tag/" + tag
}

// CommitURL returns the web URL of a commit
func CommitURL(repo RepositoryRef, sha string) string {
	return "https://github.com/" + repo.Owner + "/" + repo.Name + "/commit/" + sha
}
