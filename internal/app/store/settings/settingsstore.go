// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"time"

	"github.com/dalemusser/renewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Document ids inside the console_settings collection. The console edits
// both trees opaquely; only the config tree has keys the engine interprets.
const (
	configDoc      = "config"
	permissionsDoc = "permissions"
)

// Store persists the console's opaque JSON trees (config and permissions)
// and exposes a typed view of the renewal-related config keys. The typed
// view is re-read on every call, so a PUT from the console changes engine
// behavior without a restart.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("console_settings")}
}

type settingsDoc struct {
	ID        string         `bson:"_id"`
	Data      map[string]any `bson:"data"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func (s *Store) get(ctx context.Context, id string) (map[string]any, error) {
	var doc settingsDoc
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	return doc.Data, nil
}

func (s *Store) put(ctx context.Context, id string, data map[string]any) error {
	doc := settingsDoc{ID: id, Data: data, UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	return err
}

// GetConfig returns the console config tree as saved, or an empty tree.
func (s *Store) GetConfig(ctx context.Context) (map[string]any, error) {
	return s.get(ctx, configDoc)
}

// PutConfig replaces the console config tree.
func (s *Store) PutConfig(ctx context.Context, data map[string]any) error {
	return s.put(ctx, configDoc, data)
}

// GetPermissions returns the permission tree as saved, or an empty tree.
// The engine never interprets it; it belongs to the permission-tree editor.
func (s *Store) GetPermissions(ctx context.Context) (map[string]any, error) {
	return s.get(ctx, permissionsDoc)
}

// PutPermissions replaces the permission tree.
func (s *Store) PutPermissions(ctx context.Context, data map[string]any) error {
	return s.put(ctx, permissionsDoc, data)
}

// Renewal extracts the typed renewal settings from the config tree,
// falling back to defaults for missing or malformed keys. Key names match
// what the consoles save.
func (s *Store) Renewal(ctx context.Context) (models.RenewalSettings, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return models.RenewalSettings{}, err
	}

	out := models.DefaultRenewalSettings()
	out.Timezone = asString(cfg, "member_renewal_timezone", out.Timezone)
	out.SoonThresholdDays = asInt(cfg, "member_renewal_soon_threshold_days", out.SoonThresholdDays)
	out.DailyRemindOnce = asBool(cfg, "member_renewal_daily_remind_once", out.DailyRemindOnce)
	out.RemindTemplate = asString(cfg, "member_renewal_remind_template", out.RemindTemplate)
	out.ContactSuffix = asString(cfg, "member_renewal_contact_suffix", out.ContactSuffix)
	out.AutoLeaveOnExpire = asBool(cfg, "member_renewal_auto_leave_on_expire", out.AutoLeaveOnExpire)
	out.GraceDays = asInt(cfg, "member_renewal_grace_days", out.GraceDays)
	out.CodePrefix = asString(cfg, "member_renewal_code_prefix", out.CodePrefix)
	out.CodeRandomLen = asInt(cfg, "member_renewal_code_random_len", out.CodeRandomLen)
	out.CodeMaxUse = asInt(cfg, "member_renewal_code_max_use", out.CodeMaxUse)
	out.CodeExpireDays = asInt(cfg, "member_renewal_code_expire_days", out.CodeExpireDays)
	return out, nil
}

// The trees arrive either from JSON (float64 numbers) or from BSON
// (int32/int64), so the extractors accept both.

func asString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func asInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func asBool(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}
