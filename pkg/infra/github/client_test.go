package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
	githubinfra "github.com/m-mizutani/relwatch/pkg/infra/github"
	"github.com/m-mizutani/relwatch/pkg/infra/usage"
)

const apiBase = "https://api.github.com"

var testRepo = model.RepositoryRef{Owner: "acme", Name: "widget"}

func newTestClient(t *testing.T) (*githubinfra.Client, *httpmock.MockTransport, *usage.Tracker) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	tracker := usage.New()
	client, err := githubinfra.New(
		githubinfra.WithBaseTransport(mock),
		githubinfra.WithTracker(tracker),
	)
	gt.NoError(t, err)
	return client, mock, tracker
}

func TestClient_LatestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("published date is preferred", func(t *testing.T) {
		client, mock, tracker := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/releases/latest",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"tag_name":     "v1.2.0",
				"name":         "Widget 1.2",
				"html_url":     "https://github.com/acme/widget/releases/tag/v1.2.0",
				"created_at":   "2024-01-01T00:00:00Z",
				"published_at": "2024-01-02T00:00:00Z",
			}))

		marker, err := client.LatestRelease(ctx, "token", testRepo)
		gt.NoError(t, err)
		gt.Value(t, marker.Tag).Equal("v1.2.0")
		gt.Value(t, marker.Name).Equal("Widget 1.2")
		gt.True(t, marker.Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
		gt.Number(t, tracker.Usage().Used).Equal(1)
	})

	t.Run("created date when not published", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/releases/latest",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"tag_name":   "v1.0.0",
				"created_at": "2024-01-01T00:00:00Z",
			}))

		marker, err := client.LatestRelease(ctx, "token", testRepo)
		gt.NoError(t, err)
		gt.True(t, marker.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("no release is not found", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/releases/latest",
			httpmock.NewJsonResponderOrPanic(404, map[string]any{"message": "Not Found"}))

		_, err := client.LatestRelease(ctx, "token", testRepo)
		gt.Error(t, err)
		gt.Value(t, model.KindOf(err)).Equal(model.ErrorKindNotFound)
		gt.Number(t, model.StatusCodeOf(err)).Equal(404)
	})

	t.Run("rejected credential is auth error", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/releases/latest",
			httpmock.NewJsonResponderOrPanic(401, map[string]any{"message": "Bad credentials"}))

		_, err := client.LatestRelease(ctx, "expired", testRepo)
		gt.Error(t, err)
		gt.True(t, model.IsAuthError(err))
	})

	t.Run("forbidden with rate limit text is rate limit", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/releases/latest",
			httpmock.NewJsonResponderOrPanic(403, map[string]any{"message": "You have exceeded a secondary rate limit"}))

		_, err := client.LatestRelease(ctx, "token", testRepo)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.ErrTagRateLimit))
	})

	t.Run("plain forbidden", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/releases/latest",
			httpmock.NewJsonResponderOrPanic(403, map[string]any{"message": "Resource not accessible by integration"}))

		_, err := client.LatestRelease(ctx, "token", testRepo)
		gt.Error(t, err)
		gt.Value(t, model.KindOf(err)).Equal(model.ErrorKindForbidden)
	})
}

func TestClient_LatestTag(t *testing.T) {
	ctx := context.Background()

	t.Run("annotated tag is dereferenced", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/tags",
			httpmock.NewJsonResponderOrPanic(200, []map[string]any{{"name": "v2.0.0"}}))
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/git/ref/tags/v2.0.0",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"ref":    "refs/tags/v2.0.0",
				"object": map[string]any{"type": "tag", "sha": "tagobj"},
			}))
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/git/tags/tagobj",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"tag":    "v2.0.0",
				"object": map[string]any{"type": "commit", "sha": "commitsha"},
			}))
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/git/commits/commitsha",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"sha":       "commitsha",
				"committer": map[string]any{"name": "bot", "date": "2024-03-01T12:00:00Z"},
			}))

		marker, err := client.LatestTag(ctx, "token", testRepo)
		gt.NoError(t, err)
		gt.Value(t, marker).NotNil()
		gt.Value(t, marker.Tag).Equal("v2.0.0")
		gt.Value(t, marker.URL).Equal("https://github.com/acme/widget/releases/tag/v2.0.0")
		gt.True(t, marker.Date.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
		gt.Number(t, mock.GetTotalCallCount()).Equal(4)
	})

	t.Run("lightweight tag points to commit", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/tags",
			httpmock.NewJsonResponderOrPanic(200, []map[string]any{{"name": "v0.1"}}))
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/git/ref/tags/v0.1",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"ref":    "refs/tags/v0.1",
				"object": map[string]any{"type": "commit", "sha": "abc"},
			}))
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/git/commits/abc",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"sha":       "abc",
				"committer": map[string]any{"date": "2023-12-24T00:00:00Z"},
			}))

		marker, err := client.LatestTag(ctx, "token", testRepo)
		gt.NoError(t, err)
		gt.True(t, marker.Date.Equal(time.Date(2023, 12, 24, 0, 0, 0, 0, time.UTC)))
		gt.Number(t, mock.GetTotalCallCount()).Equal(3)
	})

	t.Run("no tags", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/tags",
			httpmock.NewJsonResponderOrPanic(200, []map[string]any{}))

		marker, err := client.LatestTag(ctx, "token", testRepo)
		gt.NoError(t, err)
		gt.Value(t, marker).Nil()
	})
}

func TestClient_CommitsSince(t *testing.T) {
	client, mock, _ := newTestClient(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var gotQuery string
	mock.RegisterResponder("GET", apiBase+"/repos/acme/widget/commits",
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.RawQuery
			return httpmock.NewJsonResponse(200, []map[string]any{
				{
					"sha":      "0123456789abcdef",
					"html_url": "https://github.com/acme/widget/commit/0123456789abcdef",
					"commit": map[string]any{
						"message":   "feat: add thing\n\nlong body",
						"author":    map[string]any{"name": "Alice", "date": "2024-01-05T00:00:00Z"},
						"committer": map[string]any{"name": "GitHub", "date": "2024-01-06T00:00:00Z"},
					},
				},
			})
		})

	commits, err := client.CommitsSince(context.Background(), "token", testRepo, since, 100)
	gt.NoError(t, err)
	gt.A(t, commits).Length(1)
	gt.Value(t, commits[0].SHA).Equal("0123456789abcdef")
	gt.Value(t, commits[0].Author).Equal("Alice")
	gt.True(t, commits[0].Date.Equal(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)))
	gt.String(t, gotQuery).Contains("since=2024-01-01T00%3A00%3A00Z")
	gt.String(t, gotQuery).Contains("per_page=100")
}

func TestClient_MergedPullRequestsSince(t *testing.T) {
	client, mock, _ := newTestClient(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var gotQuery string
	mock.RegisterResponder("GET", apiBase+"/search/issues",
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.Query().Get("q")
			return httpmock.NewJsonResponse(200, map[string]any{
				"total_count": 2,
				"items": []map[string]any{
					{
						"number":       7,
						"title":        "Fix crash",
						"html_url":     "https://github.com/acme/widget/pull/7",
						"user":         map[string]any{"login": "bob"},
						"pull_request": map[string]any{"merged_at": "2024-01-03T00:00:00Z"},
					},
					{
						"number":       8,
						"title":        "Not merged",
						"pull_request": map[string]any{},
					},
				},
			})
		})

	prs, err := client.MergedPullRequestsSince(context.Background(), "token", testRepo, since, 30)
	gt.NoError(t, err)
	gt.A(t, prs).Length(1)
	gt.Value(t, prs[0].Number).Equal(7)
	gt.Value(t, prs[0].Author).Equal("bob")
	gt.Value(t, gotQuery).Equal("repo:acme/widget is:pr is:merged merged:>=2024-01-01T00:00:00Z")
}

func graphQLResponder(t *testing.T, status int, body any, check func(req map[string]any)) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		var decoded map[string]any
		gt.NoError(t, json.NewDecoder(req.Body).Decode(&decoded))
		gt.Value(t, req.Header.Get("Authorization")).Equal("Bearer token")
		if check != nil {
			check(decoded)
		}
		return httpmock.NewJsonResponse(status, body)
	}
}

func TestClient_BatchQuery(t *testing.T) {
	ctx := context.Background()
	repos := []model.RepositoryRef{
		{Owner: "acme", Name: "widget"},
		{Owner: "acme", Name: "gone"},
		{Owner: "acme", Name: "tagged"},
	}

	t.Run("demultiplexes aliases", func(t *testing.T) {
		client, mock, tracker := newTestClient(t)
		mock.RegisterResponder("POST", apiBase+"/graphql", graphQLResponder(t, 200, map[string]any{
			"data": map[string]any{
				"repo0": map[string]any{
					"latestRelease": map[string]any{
						"tagName":     "v1.0.0",
						"name":        "First",
						"url":         "https://github.com/acme/widget/releases/tag/v1.0.0",
						"createdAt":   "2023-12-31T00:00:00Z",
						"publishedAt": "2024-01-01T00:00:00Z",
					},
					"refs": map[string]any{"nodes": []any{}},
					"defaultBranchRef": map[string]any{
						"target": map[string]any{
							"history": map[string]any{
								"nodes": []any{
									map[string]any{
										"oid":           "aaaaaaaaaa",
										"message":       "new commit",
										"committedDate": "2024-01-02T00:00:00Z",
										"author":        map[string]any{"name": "Alice"},
										"url":           "https://github.com/acme/widget/commit/aaaaaaaaaa",
									},
								},
							},
						},
					},
					"pullRequests": map[string]any{
						"nodes": []any{
							map[string]any{
								"number":   3,
								"title":    "merged",
								"mergedAt": "2024-01-03T00:00:00Z",
								"author":   nil,
								"url":      "https://github.com/acme/widget/pull/3",
							},
						},
					},
				},
				"repo1": nil,
				"repo2": map[string]any{
					"latestRelease": nil,
					"refs": map[string]any{
						"nodes": []any{
							map[string]any{
								"name": "v0.9",
								"target": map[string]any{
									"tagger": map[string]any{"date": "2024-02-01T00:00:00Z"},
									"target": map[string]any{"committedDate": "2024-01-20T00:00:00Z"},
								},
							},
						},
					},
					"defaultBranchRef": nil,
					"pullRequests":     map[string]any{"nodes": []any{}},
				},
			},
			"errors": []any{
				map[string]any{
					"type":    "NOT_FOUND",
					"message": "Could not resolve to a Repository with the name 'acme/gone'.",
					"path":    []any{"repo1"},
				},
			},
		}, func(req map[string]any) {
			vars := req["variables"].(map[string]any)
			gt.Value(t, vars["repo0Owner"]).Equal("acme")
			gt.Value(t, vars["repo1Name"]).Equal("gone")
			gt.Value(t, vars["commits"]).Equal(float64(30))
			gt.Value(t, vars["prs"]).Equal(float64(20))
			query := req["query"].(string)
			gt.String(t, query).Contains("repo2: repository(owner: $repo2Owner, name: $repo2Name)")
			gt.False(t, strings.Contains(query, "widget"))
		}))

		items, err := client.BatchQuery(ctx, "token", repos, 30, 20)
		gt.NoError(t, err)
		gt.A(t, items).Length(3)
		gt.Number(t, tracker.Usage().Used).Equal(1)

		first := items[0].Snapshot
		gt.Value(t, first).NotNil()
		gt.Value(t, first.Repo).Equal(repos[0])
		gt.Value(t, first.LatestRelease.Tag).Equal("v1.0.0")
		gt.True(t, first.LatestRelease.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		gt.Value(t, first.LatestTag).Nil()
		gt.A(t, first.Commits).Length(1)
		gt.Value(t, first.Commits[0].Author).Equal("Alice")
		gt.A(t, first.PullRequests).Length(1)
		gt.Value(t, first.PullRequests[0].Author).Equal("")

		gt.Value(t, items[1].Snapshot).Nil()
		gt.Error(t, items[1].Err)
		gt.Value(t, model.KindOf(items[1].Err)).Equal(model.ErrorKindNotFound)
		gt.Number(t, model.StatusCodeOf(items[1].Err)).Equal(404)

		third := items[2].Snapshot
		gt.Value(t, third.LatestRelease).Nil()
		gt.Value(t, third.LatestTag.Tag).Equal("v0.9")
		gt.True(t, third.LatestTag.Date.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
		gt.A(t, third.Commits).Length(0)
	})

	t.Run("forbidden alias", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("POST", apiBase+"/graphql", graphQLResponder(t, 200, map[string]any{
			"data": map[string]any{"repo0": nil, "repo1": map[string]any{}, "repo2": map[string]any{}},
			"errors": []any{
				map[string]any{"type": "FORBIDDEN", "message": "SAML enforcement", "path": []any{"repo0"}},
			},
		}, nil))

		items, err := client.BatchQuery(ctx, "token", repos, 30, 30)
		gt.NoError(t, err)
		gt.Value(t, model.KindOf(items[0].Err)).Equal(model.ErrorKindForbidden)
		gt.Value(t, items[1].Snapshot).NotNil()
	})

	t.Run("rate limited batch", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("POST", apiBase+"/graphql", graphQLResponder(t, 200, map[string]any{
			"errors": []any{
				map[string]any{"type": "RATE_LIMITED", "message": "API rate limit exceeded for user ID 1."},
			},
		}, nil))

		_, err := client.BatchQuery(ctx, "token", repos, 30, 30)
		gt.Error(t, err)
		gt.Value(t, model.KindOf(err)).Equal(model.ErrorKindRateLimit)
	})

	t.Run("errors without data", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("POST", apiBase+"/graphql", graphQLResponder(t, 200, map[string]any{
			"errors": []any{
				map[string]any{"message": "Something went wrong while executing your query."},
			},
		}, nil))

		_, err := client.BatchQuery(ctx, "token", repos, 30, 30)
		gt.Error(t, err)
		gt.Value(t, model.KindOf(err)).Equal(model.ErrorKindUpstream)
	})

	t.Run("unauthorized", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("POST", apiBase+"/graphql", graphQLResponder(t, 401, map[string]any{
			"message": "Bad credentials",
		}, nil))

		_, err := client.BatchQuery(ctx, "token", repos, 30, 30)
		gt.Error(t, err)
		gt.True(t, model.IsAuthError(err))
		gt.Number(t, model.StatusCodeOf(err)).Equal(401)
	})

	t.Run("forbidden with rate limit message", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("POST", apiBase+"/graphql", graphQLResponder(t, 403, map[string]any{
			"message": "API rate limit exceeded",
		}, nil))

		_, err := client.BatchQuery(ctx, "token", repos, 30, 30)
		gt.Error(t, err)
		gt.Value(t, model.KindOf(err)).Equal(model.ErrorKindRateLimit)
	})

	t.Run("empty input makes no request", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		items, err := client.BatchQuery(ctx, "token", nil, 30, 30)
		gt.NoError(t, err)
		gt.A(t, items).Length(0)
		gt.Number(t, mock.GetTotalCallCount()).Equal(0)
	})
}

func TestClient_AccessChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("current user", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/user",
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"id":         42,
				"login":      "alice",
				"avatar_url": "https://avatars.example/alice",
			}))

		id, err := client.CurrentUser(ctx, "token")
		gt.NoError(t, err)
		gt.Value(t, id.ID).Equal(int64(42))
		gt.Value(t, id.Name).Equal("alice")
	})

	t.Run("org membership", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/orgs/acme/members/alice", httpmock.NewStringResponder(204, ""))
		mock.RegisterResponder("GET", apiBase+"/orgs/acme/members/mallory",
			httpmock.NewJsonResponderOrPanic(404, map[string]any{"message": "Not Found"}))

		ok, err := client.IsOrgMember(ctx, "token", "acme", "alice")
		gt.NoError(t, err)
		gt.True(t, ok)

		ok, err = client.IsOrgMember(ctx, "token", "acme", "mallory")
		gt.NoError(t, err)
		gt.False(t, ok)
	})

	t.Run("user orgs", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/user/orgs",
			httpmock.NewJsonResponderOrPanic(200, []map[string]any{{"login": "Acme"}, {"login": "other"}}))

		orgs, err := client.ListUserOrgs(ctx, "token")
		gt.NoError(t, err)
		gt.A(t, orgs).Length(2)
		gt.Value(t, orgs[0]).Equal("Acme")
	})

	t.Run("private repos listing", func(t *testing.T) {
		client, mock, _ := newTestClient(t)
		mock.RegisterResponder("GET", apiBase+"/orgs/acme/repos",
			httpmock.NewJsonResponderOrPanic(200, []map[string]any{{"name": "secret"}}))
		mock.RegisterResponder("GET", apiBase+"/orgs/other/repos",
			httpmock.NewJsonResponderOrPanic(403, map[string]any{"message": "Must have admin rights"}))
		mock.RegisterResponder("GET", apiBase+"/orgs/public/repos",
			httpmock.NewJsonResponderOrPanic(200, []map[string]any{}))

		ok, err := client.CanListPrivateOrgRepos(ctx, "token", "acme")
		gt.NoError(t, err)
		gt.True(t, ok)

		ok, err = client.CanListPrivateOrgRepos(ctx, "token", "other")
		gt.NoError(t, err)
		gt.False(t, ok)

		t.Run("empty list means no membership", func(t *testing.T) {
			ok, err := client.CanListPrivateOrgRepos(ctx, "token", "public")
			gt.NoError(t, err)
			gt.False(t, ok)
		})
	})
}

func TestNew_EnterpriseURL(t *testing.T) {
	client, err := githubinfra.New(githubinfra.WithEnterpriseURL("https://ghe.example.com/api/v3/", "https://ghe.example.com/api/graphql"))
	gt.NoError(t, err)
	gt.Value(t, client).NotNil()

	_, err = githubinfra.New(githubinfra.WithEnterpriseURL("://broken", ""))
	gt.Error(t, err)
}

func TestStaticCredential(t *testing.T) {
	cred, err := githubinfra.StaticCredential("ghp_x").Credential(context.Background())
	gt.NoError(t, err)
	gt.Value(t, cred).Equal(model.Credential("ghp_x"))

	_, err = githubinfra.StaticCredential("").Credential(context.Background())
	gt.Error(t, err)
	gt.True(t, model.IsAuthError(err))
}

func TestAppTokenSource(t *testing.T) {
	appID := os.Getenv("TEST_GITHUB_APP_ID")
	installationID := os.Getenv("TEST_GITHUB_INSTALLATION_ID")
	privateKey := os.Getenv("TEST_GITHUB_PRIVATE_KEY")

	if appID == "" || installationID == "" || privateKey == "" {
		t.Skip("Test GitHub App credentials not provided via environment variables")
	}

	appIDInt, err := strconv.ParseInt(appID, 10, 64)
	gt.NoError(t, err)
	installationIDInt, err := strconv.ParseInt(installationID, 10, 64)
	gt.NoError(t, err)

	tracker := usage.New()
	src, err := githubinfra.NewAppTokenSourceFromConfig(appIDInt, installationIDInt, privateKey, "", tracker)
	gt.NoError(t, err)

	cred, err := src.Credential(context.Background())
	gt.NoError(t, err)
	gt.True(t, cred != "")
	gt.Number(t, tracker.Usage().Used).Greater(0)
}
