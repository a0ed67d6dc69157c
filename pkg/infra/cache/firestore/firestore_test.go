package firestore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/infra/cache/firestore"
)

func TestStore(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID is not set")
	}

	ctx := context.Background()
	collection := "relwatch-test-" + uuid.NewString()
	store, err := firestore.New(ctx, projectID, os.Getenv("TEST_FIRESTORE_DATABASE_ID"), collection)
	gt.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	released := model.NewReleasedResult(
		model.RepositoryRef{Owner: "acme", Name: "widget"},
		model.ReleaseMarker{Tag: "v2", Date: now.Add(-time.Hour), Name: "v2"},
		[]model.Commit{{SHA: "abcdef0", Message: "fix", Author: "alice", Date: now}},
		[]model.PullRequest{{Number: 3, Title: "feat", Author: "bob", MergedAt: now}},
		1, 1, now,
	)
	untagged := model.NewNoReleaseResult(model.RepositoryRef{Owner: "acme", Name: "untagged"}, now)

	gt.NoError(t, store.Save(ctx, released))
	gt.NoError(t, store.Save(ctx, untagged))

	results, err := store.LoadAll(ctx)
	gt.NoError(t, err)
	gt.A(t, results).Length(2)

	byRepo := map[string]*model.RepositoryResult{}
	for _, r := range results {
		byRepo[r.Ref().Key()] = r
	}
	gt.Value(t, byRepo["acme/widget"].Release.Tag).Equal("v2")
	gt.Value(t, byRepo["acme/widget"].PRs[0].Number).Equal(3)
	gt.Value(t, byRepo["acme/untagged"].Release).Nil()
	gt.Value(t, byRepo["acme/untagged"].Error).Equal(model.NoReleaseMessage)
}

func TestNew_RequiresProject(t *testing.T) {
	_, err := firestore.New(context.Background(), "", "", "")
	gt.Error(t, err)
}
