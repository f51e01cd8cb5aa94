// internal/app/system/indexes/indexes_test.go
package indexes_test

import (
	"context"
	"testing"

	"github.com/dalemusser/renewhub/internal/app/system/indexes"
	"github.com/dalemusser/renewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexNames(t *testing.T, ctx context.Context, coll *mongo.Collection) map[string]bool {
	t.Helper()
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	defer cur.Close(ctx)

	names := map[string]bool{}
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureCreatesAndIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	coll := db.Collection("things")

	want := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("uniq_things_slug").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiry", Value: 1}},
			Options: options.Index().SetName("idx_things_expiry"),
		},
	}

	if err := indexes.Ensure(ctx, coll, want); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := indexes.Ensure(ctx, coll, want); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}

	names := indexNames(t, ctx, coll)
	if !names["uniq_things_slug"] || !names["idx_things_expiry"] {
		t.Fatalf("expected both indexes, got %v", names)
	}
}

func TestEnsureRenamesSameKeys(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	coll := db.Collection("things")

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetName("old_slug_idx"),
	})
	if err != nil {
		t.Fatalf("seed index: %v", err)
	}

	err = indexes.Ensure(ctx, coll, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("idx_things_slug"),
		},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	names := indexNames(t, ctx, coll)
	if names["old_slug_idx"] {
		t.Fatal("stale index name survived")
	}
	if !names["idx_things_slug"] {
		t.Fatalf("renamed index missing, got %v", names)
	}
}

func TestEnsureUpgradesToUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	coll := db.Collection("things")

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetName("idx_things_slug"),
	})
	if err != nil {
		t.Fatalf("seed index: %v", err)
	}

	err = indexes.Ensure(ctx, coll, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("idx_things_slug").SetUnique(true),
		},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	// The unique constraint is now enforced.
	if _, err := coll.InsertOne(ctx, bson.M{"slug": "a"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := coll.InsertOne(ctx, bson.M{"slug": "a"}); err == nil {
		t.Fatal("duplicate insert should fail after upgrade to unique")
	}
}
