// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/renewhub/internal/app/system/indexes"
	"github.com/dalemusser/renewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound       = errors.New("membership not found")
	ErrDuplicateGroup = errors.New("group already has a membership record")
)

// Store provides access to the memberships collection: one document per
// chat group, keyed externally by group_id (unique index) and internally by
// the Mongo ObjectID, which stays stable across edits.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("memberships")}
}

// EnsureIndexes reconciles the membership indexes. Idempotent; called from
// bootstrap.EnsureSchema.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return indexes.Ensure(ctx, s.c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetName("uniq_group_id").SetUnique(true),
		},
		// The sweep scans by expiry; keeps the full pass off a collection scan
		// once the record count grows.
		{
			Keys:    bson.D{{Key: "expiry", Value: 1}},
			Options: options.Index().SetName("idx_membership_expiry"),
		},
	})
}

// All returns every membership record.
func (s *Store) All(ctx context.Context) ([]models.Membership, error) {
	cur, err := s.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []models.Membership
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetByGroup returns the record for the given external group id.
func (s *Store) GetByGroup(ctx context.Context, groupID string) (models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return models.Membership{}, ErrNotFound
	}
	if err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

// GetByID returns the record for the given internal id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return models.Membership{}, ErrNotFound
	}
	if err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

// Insert creates a new record, assigning the internal id and timestamps.
// A live record for the same group_id yields ErrDuplicateGroup.
func (s *Store) Insert(ctx context.Context, m models.Membership) (models.Membership, error) {
	now := time.Now().UTC()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = models.MembershipActive
	}

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrDuplicateGroup
		}
		return models.Membership{}, err
	}
	return m, nil
}

// Save replaces the mutable fields of an existing record, keyed by the
// internal id so group_id renames keep history.
func (s *Store) Save(ctx context.Context, m models.Membership) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{
		"$set": bson.M{
			"group_id":          m.GroupID,
			"expiry":            m.Expiry,
			"managed_by_bot":    m.ManagedByBot,
			"remark":            m.Remark,
			"renewed_by":        m.RenewedBy,
			"renewal_code_used": m.RenewalCodeUsed,
			"status":            m.Status,
			"last_reminder_on":  m.LastReminderOn,
			"expired_at":        m.ExpiredAt,
			"updated_at":        time.Now().UTC(),
		},
	})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateGroup
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkExpired flags a record as expired without removing it, recording when
// the sweep noticed. Removal happens after the grace window.
func (s *Store) MarkExpired(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":     models.MembershipExpired,
			"expired_at": at,
			"updated_at": time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastReminder records the local day a reminder was delivered for the
// group, so the sweep does not re-notify it the same day.
func (s *Store) SetLastReminder(ctx context.Context, id primitive.ObjectID, day string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"last_reminder_on": day,
			"updated_at":       time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record for the given external group id.
func (s *Store) Delete(ctx context.Context, groupID string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID removes the record with the given internal id.
func (s *Store) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
