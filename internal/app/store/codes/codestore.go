// internal/app/store/codes/codestore.go
package codestore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/renewhub/internal/app/system/indexes"
	"github.com/dalemusser/renewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound      = errors.New("renewal code not found")
	ErrDuplicateCode = errors.New("renewal code already exists")
	ErrExhausted     = errors.New("renewal code has no uses left")
	ErrExpired       = errors.New("renewal code is past its expiry")
)

// Store provides access to the renewal_codes collection. The code string
// carries a unique index; use-count accounting goes through Consume, which
// is a single conditional update so the max_use ceiling can never be
// overshot by concurrent redemptions.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("renewal_codes")}
}

// EnsureIndexes reconciles the code indexes. Idempotent; called from
// bootstrap.EnsureSchema.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return indexes.Ensure(ctx, s.c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetName("uniq_code").SetUnique(true),
		},
		// Live filters on expire_at when pruning dead codes.
		{
			Keys:    bson.D{{Key: "expire_at", Value: 1}},
			Options: options.Index().SetName("idx_code_expire_at"),
		},
	})
}

// Insert stores a freshly generated code. A token collision with a live
// code yields ErrDuplicateCode so the generator can retry.
func (s *Store) Insert(ctx context.Context, c models.RenewalCode) error {
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// Get returns a code regardless of its exhaustion or expiry state.
func (s *Store) Get(ctx context.Context, code string) (models.RenewalCode, error) {
	var c models.RenewalCode
	err := s.c.FindOne(ctx, bson.M{"code": code}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return models.RenewalCode{}, ErrNotFound
	}
	if err != nil {
		return models.RenewalCode{}, err
	}
	return c, nil
}

// Live returns the codes that can still be redeemed: uses remain and the
// code's own expiry, if any, has not passed.
func (s *Store) Live(ctx context.Context, now time.Time) ([]models.RenewalCode, error) {
	filter := bson.M{
		"$expr": bson.M{"$lt": bson.A{"$use_count", "$max_use"}},
		"$or": bson.A{
			bson.M{"expire_at": nil},
			bson.M{"expire_at": bson.M{"$gt": now}},
		},
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var codes []models.RenewalCode
	if err := cur.All(ctx, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Consume atomically claims one use of the code and returns the updated
// document. The filter requires use_count < max_use and a live expiry, so
// two concurrent redemptions of a single-use code cannot both succeed.
// Failures are disambiguated into ErrNotFound, ErrExhausted, or ErrExpired.
func (s *Store) Consume(ctx context.Context, code string, now time.Time) (models.RenewalCode, error) {
	filter := bson.M{
		"code":  code,
		"$expr": bson.M{"$lt": bson.A{"$use_count", "$max_use"}},
		"$or": bson.A{
			bson.M{"expire_at": nil},
			bson.M{"expire_at": bson.M{"$gt": now}},
		},
	}
	update := bson.M{"$inc": bson.M{"use_count": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c models.RenewalCode
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	if err == nil {
		return c, nil
	}
	if err != mongo.ErrNoDocuments {
		return models.RenewalCode{}, err
	}

	// The guarded update matched nothing; look the code up to say why.
	existing, gerr := s.Get(ctx, code)
	if gerr != nil {
		return models.RenewalCode{}, gerr
	}
	if existing.Exhausted() {
		return models.RenewalCode{}, ErrExhausted
	}
	if existing.Expired(now) {
		return models.RenewalCode{}, ErrExpired
	}
	// Raced with a concurrent delete between update and lookup.
	return models.RenewalCode{}, ErrNotFound
}

// Unconsume returns a previously claimed use. It is the compensation step
// when the membership half of a redemption fails after Consume succeeded.
func (s *Store) Unconsume(ctx context.Context, code string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"code": code, "use_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"use_count": -1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a code, typically after its last use was redeemed.
func (s *Store) Delete(ctx context.Context, code string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
