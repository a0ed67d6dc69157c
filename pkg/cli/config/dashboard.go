package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/m-mizutani/relwatch/pkg/usecase"
)

// Dashboard holds orchestration tuning
type Dashboard struct {
	BatchSize      int
	BatchDelay     time.Duration
	CommitsPerRepo int
	PRsPerRepo     int
	RESTPageSize   int
	RESTInterval   time.Duration
	RESTBurst      int
	AccessTTL      time.Duration
	RefreshTimeout time.Duration
}

// Flags returns CLI flags for orchestration tuning
func (c *Dashboard) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "Repositories per combined query",
			Value:       usecase.DefaultBatchSize,
			Destination: &c.BatchSize,
			Sources:     cli.EnvVars("RELWATCH_BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Name:        "batch-delay",
			Usage:       "Pause between combined queries",
			Value:       usecase.DefaultBatchDelay,
			Destination: &c.BatchDelay,
			Sources:     cli.EnvVars("RELWATCH_BATCH_DELAY"),
		},
		&cli.IntFlag{
			Name:        "commits-per-repo",
			Usage:       "Commits read per repository in a combined query",
			Value:       usecase.DefaultCommitsPerRepo,
			Destination: &c.CommitsPerRepo,
			Sources:     cli.EnvVars("RELWATCH_COMMITS_PER_REPO"),
		},
		&cli.IntFlag{
			Name:        "prs-per-repo",
			Usage:       "Merged pull requests read per repository in a combined query",
			Value:       usecase.DefaultPRsPerRepo,
			Destination: &c.PRsPerRepo,
			Sources:     cli.EnvVars("RELWATCH_PRS_PER_REPO"),
		},
		&cli.IntFlag{
			Name:        "rest-page-size",
			Usage:       "Page size of per-repository fallback requests",
			Value:       usecase.DefaultRESTPageSize,
			Destination: &c.RESTPageSize,
			Sources:     cli.EnvVars("RELWATCH_REST_PAGE_SIZE"),
		},
		&cli.DurationFlag{
			Name:        "rest-interval",
			Usage:       "Minimum interval between per-repository fallback fetches",
			Value:       100 * time.Millisecond,
			Destination: &c.RESTInterval,
			Sources:     cli.EnvVars("RELWATCH_REST_INTERVAL"),
		},
		&cli.IntFlag{
			Name:        "rest-burst",
			Usage:       "Per-repository fallback fetches allowed at once",
			Value:       5,
			Destination: &c.RESTBurst,
			Sources:     cli.EnvVars("RELWATCH_REST_BURST"),
		},
		&cli.DurationFlag{
			Name:        "access-ttl",
			Usage:       "How long an organization membership decision is reused",
			Value:       usecase.DefaultAccessTTL,
			Destination: &c.AccessTTL,
			Sources:     cli.EnvVars("RELWATCH_ACCESS_TTL"),
		},
		&cli.DurationFlag{
			Name:        "refresh-timeout",
			Usage:       "Upper bound of one dashboard refresh",
			Value:       usecase.DefaultRefreshTimeout,
			Destination: &c.RefreshTimeout,
			Sources:     cli.EnvVars("RELWATCH_REFRESH_TIMEOUT"),
		},
	}
}

// Validate rejects values the orchestrator can't run with
func (c *Dashboard) Validate() error {
	if c.BatchSize < 1 {
		return goerr.New("batch size must be positive", goerr.V("batch_size", c.BatchSize))
	}
	if c.CommitsPerRepo < 1 || c.PRsPerRepo < 1 || c.RESTPageSize < 1 {
		return goerr.New("page sizes must be positive",
			goerr.V("commits", c.CommitsPerRepo),
			goerr.V("prs", c.PRsPerRepo),
			goerr.V("rest", c.RESTPageSize),
		)
	}
	if c.RESTBurst < 1 {
		return goerr.New("REST burst must be positive", goerr.V("burst", c.RESTBurst))
	}
	return nil
}

// Options converts the configuration into orchestrator options
func (c *Dashboard) Options() []usecase.DashboardOption {
	limit := rate.Inf
	if c.RESTInterval > 0 {
		limit = rate.Every(c.RESTInterval)
	}
	return []usecase.DashboardOption{
		usecase.WithBatchSize(c.BatchSize),
		usecase.WithBatchDelay(c.BatchDelay),
		usecase.WithPageSizes(c.CommitsPerRepo, c.PRsPerRepo, c.RESTPageSize),
		usecase.WithRESTLimiter(rate.NewLimiter(limit, c.RESTBurst)),
		usecase.WithRefreshTimeout(c.RefreshTimeout),
	}
}

// AccessOptions converts the configuration into access gate options
func (c *Dashboard) AccessOptions() []usecase.AccessOption {
	return []usecase.AccessOption{usecase.WithAccessTTL(c.AccessTTL)}
}
