package config

import (
	"net/url"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/infra/github"
	"github.com/m-mizutani/relwatch/pkg/infra/usage"
)

// GitHub holds GitHub configuration
type GitHub struct {
	Org            string
	Token          string `masq:"secret"`
	AppID          int64
	InstallationID int64
	PrivateKey     string `masq:"secret"`
	EnterpriseURL  string
	GraphQLURL     string
	HTTPCache      bool
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-org",
			Usage:       "Organization whose members may use the dashboard",
			Destination: &c.Org,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_ORG"),
		},
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "Server token for warm-up, webhook refreshes and the fetch command",
			Destination: &c.Token,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID, used instead of a token",
			Destination: &c.AppID,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-app-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_APP_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-app-private-key",
			Usage:       "GitHub App private key (PEM)",
			Destination: &c.PrivateKey,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_APP_PRIVATE_KEY"),
		},
		&cli.StringFlag{
			Name:        "github-enterprise-url",
			Usage:       "GitHub Enterprise Server API base URL, e.g. https://ghe.example.com/api/v3/",
			Destination: &c.EnterpriseURL,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_ENTERPRISE_URL"),
		},
		&cli.StringFlag{
			Name:        "github-graphql-url",
			Usage:       "GraphQL endpoint for GitHub Enterprise Server",
			Destination: &c.GraphQLURL,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_GRAPHQL_URL"),
		},
		&cli.BoolFlag{
			Name:        "github-http-cache",
			Usage:       "Revalidate REST responses with ETags",
			Value:       true,
			Destination: &c.HTTPCache,
			Sources:     cli.EnvVars("RELWATCH_GITHUB_HTTP_CACHE"),
		},
	}
}

// NewTracker creates the usage tracker. Calls to an Enterprise host are
// counted as well.
func (c *GitHub) NewTracker() *usage.Tracker {
	if c.EnterpriseURL == "" {
		return usage.New()
	}
	u, err := url.Parse(c.EnterpriseURL)
	if err != nil {
		return usage.New()
	}
	return usage.New(usage.WithHosts(u.Hostname()))
}

// NewClient builds the GitHub client. Every request is recorded in tracker.
func (c *GitHub) NewClient(tracker *usage.Tracker) (*github.Client, error) {
	opts := []github.Option{
		github.WithTracker(tracker),
		github.WithHTTPCache(c.HTTPCache),
	}
	if c.EnterpriseURL != "" {
		opts = append(opts, github.WithEnterpriseURL(c.EnterpriseURL, c.GraphQLURL))
	}

	client, err := github.New(opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub client")
	}
	return client, nil
}

// HasServerCredential reports whether a token or App is configured
func (c *GitHub) HasServerCredential() bool {
	return c.Token != "" || c.AppID != 0
}

// CredentialSource returns the server credential. An App takes precedence
// over a token.
func (c *GitHub) CredentialSource(tracker *usage.Tracker) (interfaces.CredentialSource, error) {
	if c.AppID != 0 {
		if c.InstallationID == 0 {
			return nil, goerr.New("GitHub App installation ID is required", goerr.V("app_id", c.AppID))
		}
		src, err := github.NewAppTokenSourceFromConfig(c.AppID, c.InstallationID, c.PrivateKey, c.EnterpriseURL, tracker)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return github.StaticCredential(c.Token), nil
}
