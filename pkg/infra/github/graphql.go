package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// graphQLRequest represents a GraphQL query request.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphQLResponse represents the top-level response of a batch query. Data is
// keyed by repository alias.
type graphQLResponse struct {
	Data    map[string]*graphQLRepository `json:"data"`
	Errors  []graphQLError                `json:"errors,omitempty"`
	Message string                        `json:"message,omitempty"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

// alias returns the top level field the error refers to, if any
func (e graphQLError) alias() string {
	if len(e.Path) == 0 {
		return ""
	}
	s, _ := e.Path[0].(string)
	return s
}

type graphQLRepository struct {
	LatestRelease *struct {
		TagName     string     `json:"tagName"`
		PublishedAt *time.Time `json:"publishedAt"`
		CreatedAt   time.Time  `json:"createdAt"`
		Name        string     `json:"name"`
		URL         string     `json:"url"`
	} `json:"latestRelease"`

	Refs *struct {
		Nodes []struct {
			Name   string         `json:"name"`
			Target *graphQLTarget `json:"target"`
		} `json:"nodes"`
	} `json:"refs"`

	DefaultBranchRef *struct {
		Target *struct {
			History *struct {
				Nodes []graphQLCommit `json:"nodes"`
			} `json:"history"`
		} `json:"target"`
	} `json:"defaultBranchRef"`

	PullRequests *struct {
		Nodes []graphQLPullRequest `json:"nodes"`
	} `json:"pullRequests"`
}

// graphQLTarget is either a Tag (annotated) or a Commit (lightweight tag)
type graphQLTarget struct {
	Tagger *struct {
		Date *time.Time `json:"date"`
	} `json:"tagger"`
	Target *struct {
		CommittedDate *time.Time `json:"committedDate"`
	} `json:"target"`
	CommittedDate *time.Time `json:"committedDate"`
}

func (t *graphQLTarget) date() time.Time {
	switch {
	case t == nil:
		return time.Time{}
	case t.Tagger != nil && t.Tagger.Date != nil:
		return *t.Tagger.Date
	case t.Target != nil && t.Target.CommittedDate != nil:
		return *t.Target.CommittedDate
	case t.CommittedDate != nil:
		return *t.CommittedDate
	}
	return time.Time{}
}

type graphQLCommit struct {
	OID           string    `json:"oid"`
	Message       string    `json:"message"`
	CommittedDate time.Time `json:"committedDate"`
	Author        *struct {
		Name string `json:"name"`
	} `json:"author"`
	URL string `json:"url"`
}

type graphQLPullRequest struct {
	Number   int        `json:"number"`
	Title    string     `json:"title"`
	MergedAt *time.Time `json:"mergedAt"`
	Author   *struct {
		Login string `json:"login"`
	} `json:"author"`
	URL string `json:"url"`
}

const repositoryFragment = `
fragment ReleaseDelta on Repository {
  latestRelease {
    tagName
    publishedAt
    createdAt
    name
    url
  }
  refs(refPrefix: "refs/tags/", first: 1, orderBy: {field: TAG_COMMIT_DATE, direction: DESC}) {
    nodes {
      name
      target {
        ... on Tag {
          tagger {
            date
          }
          target {
            ... on Commit {
              committedDate
            }
          }
        }
        ... on Commit {
          committedDate
        }
      }
    }
  }
  defaultBranchRef {
    target {
      ... on Commit {
        history(first: $commits) {
          nodes {
            oid
            message
            committedDate
            author {
              name
            }
            url
          }
        }
      }
    }
  }
  pullRequests(states: MERGED, first: $prs, orderBy: {field: UPDATED_AT, direction: DESC}) {
    nodes {
      number
      title
      mergedAt
      author {
        login
      }
      url
    }
  }
}
`

func repoAlias(i int) string {
	return fmt.Sprintf("repo%d", i)
}

// buildBatchQuery builds one aliased query for repos. Owner and name are
// passed as variables.
func buildBatchQuery(repos []model.RepositoryRef, commits, prs int) graphQLRequest {
	var params, fields strings.Builder
	variables := map[string]any{
		"commits": commits,
		"prs":     prs,
	}

	params.WriteString("$commits: Int!, $prs: Int!")
	for i, repo := range repos {
		alias := repoAlias(i)
		fmt.Fprintf(&params, ", $%sOwner: String!, $%sName: String!", alias, alias)
		fmt.Fprintf(&fields, "  %s: repository(owner: $%sOwner, name: $%sName) {\n    ...ReleaseDelta\n  }\n", alias, alias, alias)
		variables[alias+"Owner"] = repo.Owner
		variables[alias+"Name"] = repo.Name
	}

	return graphQLRequest{
		Query:     fmt.Sprintf("query(%s) {\n%s}\n%s", params.String(), fields.String(), repositoryFragment),
		Variables: variables,
	}
}

// BatchQuery reads release, tag, history and merged pull requests of repos
// in a single GraphQL request
func (c *Client) BatchQuery(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, commits, prs int) ([]interfaces.BatchItem, error) {
	if len(repos) == 0 {
		return nil, nil
	}

	bodyBytes, err := json.Marshal(buildBatchQuery(repos, commits, prs))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal GraphQL request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphQLURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient(ctx, cred).Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to execute GraphQL query",
			goerr.T(model.ErrTagUpstream),
			goerr.V("repos", len(repos)),
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read GraphQL response", goerr.T(model.ErrTagUpstream))
	}

	var result graphQLResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode != http.StatusOK {
		msg := result.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, goerr.Wrap(&model.StatusError{Code: resp.StatusCode, Message: msg}, "GraphQL query failed",
			model.TagForStatus(resp.StatusCode, msg),
			goerr.V("status_code", resp.StatusCode),
		)
	}
	if decodeErr != nil {
		return nil, goerr.Wrap(decodeErr, "failed to decode GraphQL response", goerr.T(model.ErrTagUpstream))
	}

	if err := batchError(result); err != nil {
		return nil, err
	}

	aliasErrors := make(map[string]graphQLError)
	for _, e := range result.Errors {
		if alias := e.alias(); alias != "" {
			aliasErrors[alias] = e
		}
	}

	items := make([]interfaces.BatchItem, len(repos))
	for i, repo := range repos {
		alias := repoAlias(i)
		data := result.Data[alias]
		if data == nil {
			items[i] = interfaces.BatchItem{Err: aliasError(repo, aliasErrors[alias])}
			continue
		}
		items[i] = interfaces.BatchItem{Snapshot: data.snapshot(repo)}
	}

	return items, nil
}

// batchError returns an error when the response can't be used at all: rate
// limiting, or errors with no data to demultiplex
func batchError(result graphQLResponse) error {
	for _, e := range result.Errors {
		if e.Type == "RATE_LIMITED" || model.IsRateLimitMessage(e.Message) {
			return goerr.Wrap(&model.StatusError{Code: http.StatusForbidden, Message: e.Message}, "GraphQL rate limit exceeded",
				goerr.T(model.ErrTagRateLimit),
			)
		}
	}

	hasData := false
	for _, v := range result.Data {
		if v != nil {
			hasData = true
			break
		}
	}

	if !hasData && len(result.Errors) > 0 {
		unattributed := true
		for _, e := range result.Errors {
			if e.alias() != "" {
				unattributed = false
				break
			}
		}
		if unattributed {
			return goerr.Wrap(&model.StatusError{Code: http.StatusInternalServerError, Message: result.Errors[0].Message}, "GraphQL query error",
				goerr.T(model.ErrTagUpstream),
				goerr.V("errors", len(result.Errors)),
			)
		}
	}

	if result.Data == nil && len(result.Errors) == 0 {
		return goerr.Wrap(&model.StatusError{Code: http.StatusInternalServerError, Message: "No data returned from GraphQL query"}, "empty GraphQL response",
			goerr.T(model.ErrTagUpstream),
		)
	}

	return nil
}

// aliasError converts a per-repository GraphQL error
func aliasError(repo model.RepositoryRef, e graphQLError) error {
	code, tag := http.StatusNotFound, model.ErrTagNotFound
	msg := e.Message
	switch e.Type {
	case "FORBIDDEN":
		code, tag = http.StatusForbidden, model.ErrTagForbidden
	case "", "NOT_FOUND":
	default:
		code, tag = http.StatusInternalServerError, model.ErrTagUpstream
	}
	if msg == "" {
		msg = model.UserMessage(model.ErrorKindNotFound)
	}

	return goerr.Wrap(&model.StatusError{Code: code, Message: msg}, "repository unavailable in batch",
		goerr.T(tag),
		goerr.V("repo", repo.Key()),
	)
}

// snapshot converts the GraphQL node of repo
func (r *graphQLRepository) snapshot(repo model.RepositoryRef) *model.RepositorySnapshot {
	snap := &model.RepositorySnapshot{Repo: repo}

	if rel := r.LatestRelease; rel != nil {
		date := rel.CreatedAt
		if rel.PublishedAt != nil {
			date = *rel.PublishedAt
		}
		snap.LatestRelease = &model.ReleaseMarker{
			Tag:  rel.TagName,
			Date: date,
			Name: rel.Name,
			URL:  rel.URL,
		}
	}

	if r.Refs != nil && len(r.Refs.Nodes) > 0 {
		tag := r.Refs.Nodes[0]
		if date := tag.Target.date(); !date.IsZero() {
			snap.LatestTag = &model.ReleaseMarker{
				Tag:  tag.Name,
				Date: date,
				Name: tag.Name,
				URL:  model.TagURL(repo, tag.Name),
			}
		}
	}

	if r.DefaultBranchRef != nil && r.DefaultBranchRef.Target != nil && r.DefaultBranchRef.Target.History != nil {
		for _, n := range r.DefaultBranchRef.Target.History.Nodes {
			commit := model.Commit{
				SHA:     n.OID,
				Message: n.Message,
				Date:    n.CommittedDate,
				URL:     n.URL,
			}
			if n.Author != nil {
				commit.Author = n.Author.Name
			}
			if commit.URL == "" {
				commit.URL = model.CommitURL(repo, n.OID)
			}
			snap.Commits = append(snap.Commits, commit)
		}
	}

	if r.PullRequests != nil {
		for _, n := range r.PullRequests.Nodes {
			if n.MergedAt == nil {
				continue
			}
			pr := model.PullRequest{
				Number:   n.Number,
				Title:    n.Title,
				MergedAt: *n.MergedAt,
				URL:      n.URL,
			}
			if n.Author != nil {
				pr.Author = n.Author.Login
			}
			snap.PullRequests = append(snap.PullRequests, pr)
		}
	}

	return snap
}
