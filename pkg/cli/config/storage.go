package config

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/infra/cache/firestore"
	"github.com/m-mizutani/relwatch/pkg/infra/cache/postgres"
)

// Storage selects the persistent backing store of the result cache
type Storage struct {
	Backend             string
	PostgresDSN         string `masq:"secret"`
	FirestoreProjectID  string
	FirestoreDatabaseID string
	FirestoreCollection string
}

// Flags returns CLI flags for storage configuration
func (c *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "storage",
			Usage:       "Persistent result store (memory, postgres, firestore)",
			Value:       "memory",
			Destination: &c.Backend,
			Sources:     cli.EnvVars("RELWATCH_STORAGE"),
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string",
			Destination: &c.PostgresDSN,
			Sources:     cli.EnvVars("RELWATCH_POSTGRES_DSN"),
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Google Cloud project of the Firestore database",
			Destination: &c.FirestoreProjectID,
			Sources:     cli.EnvVars("RELWATCH_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Destination: &c.FirestoreDatabaseID,
			Sources:     cli.EnvVars("RELWATCH_FIRESTORE_DATABASE_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Firestore collection holding results",
			Value:       firestore.DefaultCollection,
			Destination: &c.FirestoreCollection,
			Sources:     cli.EnvVars("RELWATCH_FIRESTORE_COLLECTION"),
		},
	}
}

// Open connects the configured store. It returns a nil store for the memory
// backend. The returned closer is never nil.
func (c *Storage) Open(ctx context.Context) (interfaces.ResultStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(c.Backend) {
	case "", "memory":
		return nil, noop, nil

	case "postgres":
		if c.PostgresDSN == "" {
			return nil, noop, goerr.New("postgres DSN is required for postgres storage")
		}
		store, err := postgres.NewFromDSN(ctx, c.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, noop, err
		}
		return store, store.Close, nil

	case "firestore":
		if c.FirestoreProjectID == "" {
			return nil, noop, goerr.New("firestore project ID is required for firestore storage")
		}
		store, err := firestore.New(ctx, c.FirestoreProjectID, c.FirestoreDatabaseID, c.FirestoreCollection)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil

	default:
		return nil, noop, goerr.New("unknown storage backend", goerr.V("storage", c.Backend))
	}
}
