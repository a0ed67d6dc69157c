package github

import (
	"context"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/infra/usage"
)

// AppTokenSource issues installation tokens of a GitHub App. Tokens are
// cached and refreshed by ghinstallation.
type AppTokenSource struct {
	transport *ghinstallation.Transport
}

var _ interfaces.CredentialSource = (*AppTokenSource)(nil)

// NewAppTokenSource creates a credential source with App authentication.
// Token exchange requests are recorded in tracker when it is not nil.
func NewAppTokenSource(appID, installationID int64, privateKey []byte, enterpriseURL string, tracker *usage.Tracker) (*AppTokenSource, error) {
	var base http.RoundTripper = http.DefaultTransport
	if tracker != nil {
		base = tracker.Transport(base)
	}

	itr, err := ghinstallation.New(base, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport",
			goerr.V("app_id", appID),
			goerr.V("installation_id", installationID),
		)
	}
	if enterpriseURL != "" {
		itr.BaseURL = strings.TrimSuffix(enterpriseURL, "/")
	}

	return &AppTokenSource{transport: itr}, nil
}

// NewAppTokenSourceFromConfig accepts the private key as PEM text, as it is
// given by environment variables
func NewAppTokenSourceFromConfig(appID, installationID int64, privateKey string, enterpriseURL string, tracker *usage.Tracker) (*AppTokenSource, error) {
	if privateKey == "" {
		return nil, goerr.New("GitHub App private key is empty", goerr.V("app_id", appID))
	}
	return NewAppTokenSource(appID, installationID, []byte(privateKey), enterpriseURL, tracker)
}

// Credential returns a valid installation token
func (s *AppTokenSource) Credential(ctx context.Context) (model.Credential, error) {
	token, err := s.transport.Token(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get installation token", goerr.T(model.ErrTagAuth))
	}
	return model.Credential(token), nil
}

// StaticCredential is a fixed personal access token
type StaticCredential model.Credential

var _ interfaces.CredentialSource = StaticCredential("")

// Credential returns the token. An empty token is an auth error.
func (s StaticCredential) Credential(ctx context.Context) (model.Credential, error) {
	if s == "" {
		return "", goerr.New("GitHub token is not configured", goerr.T(model.ErrTagAuth))
	}
	return model.Credential(s), nil
}
