package firestore

import (
	"time"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

type document struct {
	Status       string        `firestore:"status"`
	Owner        string        `firestore:"owner"`
	Repo         string        `firestore:"repo"`
	Release      *marker       `firestore:"release"`
	HasChanges   bool          `firestore:"has_changes"`
	CommitsCount int           `firestore:"commits_count"`
	PRsCount     int           `firestore:"prs_count"`
	Commits      []commit      `firestore:"commits"`
	PRs          []pullRequest `firestore:"prs"`
	Error        string        `firestore:"error"`
	ErrorKind    string        `firestore:"error_kind"`
	StatusCode   int           `firestore:"status_code"`
	FetchedAt    time.Time     `firestore:"fetched_at"`
}

type marker struct {
	Tag  string    `firestore:"tag"`
	Date time.Time `firestore:"date"`
	Name string    `firestore:"name"`
	URL  string    `firestore:"url"`
}

type commit struct {
	SHA     string    `firestore:"sha"`
	Message string    `firestore:"message"`
	Author  string    `firestore:"author"`
	Date    time.Time `firestore:"date"`
	URL     string    `firestore:"url"`
}

type pullRequest struct {
	Number   int       `firestore:"number"`
	Title    string    `firestore:"title"`
	MergedAt time.Time `firestore:"merged_at"`
	Author   string    `firestore:"author"`
	URL      string    `firestore:"url"`
}

func toDocument(r *model.RepositoryResult) *document {
	doc := &document{
		Status:       string(r.Status),
		Owner:        r.Owner,
		Repo:         r.Repo,
		HasChanges:   r.HasChanges,
		CommitsCount: r.CommitsCount,
		PRsCount:     r.PRsCount,
		Commits:      make([]commit, 0, len(r.Commits)),
		PRs:          make([]pullRequest, 0, len(r.PRs)),
		Error:        r.Error,
		ErrorKind:    string(r.ErrorKind),
		StatusCode:   r.StatusCode,
		FetchedAt:    r.FetchedAt,
	}
	if r.Release != nil {
		doc.Release = &marker{Tag: r.Release.Tag, Date: r.Release.Date, Name: r.Release.Name, URL: r.Release.URL}
	}
	for _, c := range r.Commits {
		doc.Commits = append(doc.Commits, commit(c))
	}
	for _, p := range r.PRs {
		doc.PRs = append(doc.PRs, pullRequest(p))
	}
	return doc
}

func (d *document) toResult() *model.RepositoryResult {
	r := &model.RepositoryResult{
		Status:       model.ResultStatus(d.Status),
		Owner:        d.Owner,
		Repo:         d.Repo,
		HasChanges:   d.HasChanges,
		CommitsCount: d.CommitsCount,
		PRsCount:     d.PRsCount,
		Commits:      make([]model.Commit, 0, len(d.Commits)),
		PRs:          make([]model.PullRequest, 0, len(d.PRs)),
		Error:        d.Error,
		ErrorKind:    model.ErrorKind(d.ErrorKind),
		StatusCode:   d.StatusCode,
		FetchedAt:    d.FetchedAt,
	}
	if d.Release != nil {
		r.Release = &model.ReleaseMarker{Tag: d.Release.Tag, Date: d.Release.Date, Name: d.Release.Name, URL: d.Release.URL}
	}
	for _, c := range d.Commits {
		r.Commits = append(r.Commits, model.Commit(c))
	}
	for _, p := range d.PRs {
		r.PRs = append(r.PRs, model.PullRequest(p))
	}
	return r
}
