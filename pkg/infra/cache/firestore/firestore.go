// Package firestore persists cached repository results in Cloud Firestore
package firestore

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// DefaultCollection is used when no collection name is configured
const DefaultCollection = "repository_results"

// Store keeps one document per repository
type Store struct {
	client     *firestore.Client
	collection string
}

var _ interfaces.ResultStore = (*Store)(nil)

// New creates a Firestore client for projectID. databaseID may be empty for
// the default database.
func New(ctx context.Context, projectID, databaseID, collection string) (*Store, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project ID is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		)
	}

	return &Store{client: client, collection: collection}, nil
}

// Close closes the Firestore client
func (s *Store) Close() error {
	return s.client.Close()
}

// docID maps owner/name to a document ID, which can't contain '/'
func docID(repo model.RepositoryRef) string {
	return strings.ReplaceAll(repo.Key(), "/", ":")
}

// Save overwrites the document of the result's repository
func (s *Store) Save(ctx context.Context, result *model.RepositoryResult) error {
	ref := s.client.Collection(s.collection).Doc(docID(result.Ref()))
	if _, err := ref.Set(ctx, toDocument(result)); err != nil {
		return goerr.Wrap(err, "failed to store result", goerr.V("repo", result.Ref().Key()))
	}
	return nil
}

// LoadAll returns every stored result
func (s *Store) LoadAll(ctx context.Context) ([]*model.RepositoryResult, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var results []*model.RepositoryResult
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate results", goerr.V("collection", s.collection))
		}

		var doc document
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode result", goerr.V("doc_id", snap.Ref.ID))
		}
		results = append(results, doc.toResult())
	}

	return results, nil
}
