package config_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/relwatch/pkg/cli/config"
	"github.com/m-mizutani/relwatch/pkg/usecase"
)

func defaultDashboard() config.Dashboard {
	return config.Dashboard{
		BatchSize:      usecase.DefaultBatchSize,
		BatchDelay:     usecase.DefaultBatchDelay,
		CommitsPerRepo: usecase.DefaultCommitsPerRepo,
		PRsPerRepo:     usecase.DefaultPRsPerRepo,
		RESTPageSize:   usecase.DefaultRESTPageSize,
		RESTBurst:      5,
	}
}

func TestDashboard_Validate(t *testing.T) {
	cfg := defaultDashboard()
	gt.NoError(t, cfg.Validate())
	gt.A(t, cfg.Options()).Length(5)

	cfg.BatchSize = 0
	gt.Error(t, cfg.Validate())

	cfg = defaultDashboard()
	cfg.PRsPerRepo = -1
	gt.Error(t, cfg.Validate())

	cfg = defaultDashboard()
	cfg.RESTBurst = 0
	gt.Error(t, cfg.Validate())
}

func TestStorage_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("memory has no store", func(t *testing.T) {
		store, closer, err := (&config.Storage{Backend: "memory"}).Open(ctx)
		gt.NoError(t, err)
		gt.Value(t, store).Nil()
		gt.NoError(t, closer())
	})

	t.Run("postgres requires DSN", func(t *testing.T) {
		_, _, err := (&config.Storage{Backend: "postgres"}).Open(ctx)
		gt.Error(t, err)
	})

	t.Run("firestore requires project", func(t *testing.T) {
		_, _, err := (&config.Storage{Backend: "firestore"}).Open(ctx)
		gt.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := (&config.Storage{Backend: "redis"}).Open(ctx)
		gt.Error(t, err)
	})
}

func TestGitHub_CredentialSource(t *testing.T) {
	ctx := context.Background()

	t.Run("token", func(t *testing.T) {
		cfg := &config.GitHub{Token: "ghp_test"}
		gt.True(t, cfg.HasServerCredential())

		src, err := cfg.CredentialSource(nil)
		gt.NoError(t, err)
		cred, err := src.Credential(ctx)
		gt.NoError(t, err)
		gt.Value(t, string(cred)).Equal("ghp_test")
	})

	t.Run("app without installation", func(t *testing.T) {
		cfg := &config.GitHub{AppID: 1234}
		_, err := cfg.CredentialSource(nil)
		gt.Error(t, err)
	})

	t.Run("none", func(t *testing.T) {
		cfg := &config.GitHub{}
		gt.False(t, cfg.HasServerCredential())
	})
}

func TestSentry_ConfigureWithoutDSN(t *testing.T) {
	flush, err := (&config.Sentry{}).Configure()
	gt.NoError(t, err)
	flush()
}
