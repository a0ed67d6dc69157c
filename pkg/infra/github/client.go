package github

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/gregjones/httpcache"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/infra/usage"
)

const (
	defaultGraphQLURL = "https://api.github.com/graphql"
	requestTimeout    = 30 * time.Second
)

// config holds internal client configuration
type config struct {
	base          http.RoundTripper
	tracker       *usage.Tracker
	httpCache     bool
	graphQLURL    string
	enterpriseURL string
}

// Option is a functional option for Client configuration
type Option func(*config)

// WithBaseTransport sets the transport that finally sends requests
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.base = rt
	}
}

// WithTracker records every outbound request in tracker
func WithTracker(tracker *usage.Tracker) Option {
	return func(c *config) {
		c.tracker = tracker
	}
}

// WithHTTPCache enables ETag revalidation of REST responses
func WithHTTPCache(enabled bool) Option {
	return func(c *config) {
		c.httpCache = enabled
	}
}

// WithEnterpriseURL points the client at a GitHub Enterprise Server instance,
// e.g. https://ghe.example.com/api/v3/
func WithEnterpriseURL(baseURL, graphQLURL string) Option {
	return func(c *config) {
		c.enterpriseURL = baseURL
		if graphQLURL != "" {
			c.graphQLURL = graphQLURL
		}
	}
}

// Client reads repository data from GitHub. A Client holds no credential;
// each call is authenticated with the credential passed to it.
type Client struct {
	transport     http.RoundTripper
	graphQLURL    string
	enterpriseURL string
}

var (
	_ interfaces.GitHubClient  = (*Client)(nil)
	_ interfaces.OrgMembership = (*Client)(nil)
)

// New creates a new GitHub client
func New(opts ...Option) (*Client, error) {
	cfg := &config{
		base:       http.DefaultTransport,
		graphQLURL: defaultGraphQLURL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := cfg.base
	if cfg.tracker != nil {
		transport = cfg.tracker.Transport(transport)
	}
	if cfg.httpCache {
		// Tracking sits below the cache so that responses served without a
		// network round trip are not counted.
		cached := httpcache.NewTransport(httpcache.NewMemoryCache())
		cached.Transport = transport
		transport = cached
	}

	client := &Client{
		transport:     transport,
		graphQLURL:    cfg.graphQLURL,
		enterpriseURL: cfg.enterpriseURL,
	}

	if client.enterpriseURL != "" {
		if _, err := client.rest(context.Background(), "").WithEnterpriseURLs(client.enterpriseURL, client.enterpriseURL); err != nil {
			return nil, goerr.Wrap(err, "invalid GitHub Enterprise URL", goerr.V("url", client.enterpriseURL))
		}
	}

	return client, nil
}

// httpClient returns an HTTP client sending cred as bearer token
func (c *Client) httpClient(ctx context.Context, cred model.Credential) *http.Client {
	base := &http.Client{Transport: c.transport, Timeout: requestTimeout}
	if cred == "" {
		return base
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(cred)})
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = requestTimeout
	return hc
}

// rest returns a go-github client authenticated with cred
func (c *Client) rest(ctx context.Context, cred model.Credential) *github.Client {
	client := github.NewClient(c.httpClient(ctx, cred))
	if c.enterpriseURL != "" {
		// URL validity is checked once in New
		if ent, err := client.WithEnterpriseURLs(c.enterpriseURL, c.enterpriseURL); err == nil {
			return ent
		}
	}
	return client
}
