// internal/app/system/renewal/engine.go

// Package renewal implements the membership renewal engine: code
// generation, code redemption, and manual expiry edits. All mutations on
// the same group or the same code are serialized through per-key locks;
// code consumption is additionally guarded by the store's conditional
// update, so a max_use ceiling can never be overshot even under concurrent
// redemption.
package renewal

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	codestore "github.com/dalemusser/renewhub/internal/app/store/codes"
	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	"github.com/dalemusser/renewhub/internal/app/system/keylock"
	"github.com/dalemusser/renewhub/internal/app/system/metrics"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MembershipStore is the subset of the memberships store the engine needs.
type MembershipStore interface {
	GetByGroup(ctx context.Context, groupID string) (models.Membership, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Membership, error)
	Insert(ctx context.Context, m models.Membership) (models.Membership, error)
	Save(ctx context.Context, m models.Membership) error
}

// CodeStore is the subset of the code store the engine needs.
type CodeStore interface {
	Insert(ctx context.Context, c models.RenewalCode) error
	Consume(ctx context.Context, code string, now time.Time) (models.RenewalCode, error)
	Unconsume(ctx context.Context, code string) error
	Delete(ctx context.Context, code string) error
}

// SettingsReader supplies the runtime renewal settings, re-read per
// operation so console edits apply immediately.
type SettingsReader interface {
	Renewal(ctx context.Context) (models.RenewalSettings, error)
}

// Engine holds the stores and locks behind the renewal operations.
type Engine struct {
	memberships MembershipStore
	codes       CodeStore
	settings    SettingsReader
	locks       *keylock.Keyed
	log         *zap.Logger
	now         func() time.Time
}

func New(memberships MembershipStore, codes CodeStore, settings SettingsReader, logger *zap.Logger) *Engine {
	return &Engine{
		memberships: memberships,
		codes:       codes,
		settings:    settings,
		locks:       keylock.New(),
		log:         logger,
		now:         time.Now,
	}
}

// WithClock overrides the engine's time source. Tests freeze time with it.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// GenerateParams describes a code to generate. Zero MaxUse and ExpireDays
// fall back to the configured defaults.
type GenerateParams struct {
	Length     int
	Unit       string
	MaxUse     int
	ExpireDays int
}

// Generate validates the request, builds a token from the configured prefix
// plus a crypto/rand suffix, and stores it. Token collisions against live
// codes are retried.
func (e *Engine) Generate(ctx context.Context, p GenerateParams) (models.RenewalCode, error) {
	if p.Length <= 0 {
		return models.RenewalCode{}, fmt.Errorf("%w: length must be positive, got %d", ErrValidation, p.Length)
	}
	unit, err := NormalizeUnit(p.Unit)
	if err != nil {
		return models.RenewalCode{}, err
	}
	if p.MaxUse < 0 {
		return models.RenewalCode{}, fmt.Errorf("%w: max_use must not be negative", ErrValidation)
	}

	cfg, err := e.settings.Renewal(ctx)
	if err != nil {
		return models.RenewalCode{}, err
	}

	maxUse := p.MaxUse
	if maxUse == 0 {
		maxUse = cfg.CodeMaxUse
	}
	if maxUse <= 0 {
		maxUse = 1
	}

	now := e.now()
	var expireAt *time.Time
	expireDays := p.ExpireDays
	if expireDays == 0 {
		expireDays = cfg.CodeExpireDays
	}
	if expireDays > 0 {
		t := now.AddDate(0, 0, expireDays)
		expireAt = &t
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code := models.RenewalCode{
			Code:          token(cfg, p.Length, unit),
			Length:        p.Length,
			Unit:          unit,
			MaxUse:        maxUse,
			UseCount:      0,
			GeneratedTime: now,
			ExpireAt:      expireAt,
		}
		err := e.codes.Insert(ctx, code)
		if errors.Is(err, codestore.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return models.RenewalCode{}, err
		}
		e.log.Info("renewal code generated",
			zap.Int("length", p.Length),
			zap.String("unit", unit),
			zap.Int("max_use", maxUse))
		return code, nil
	}
	return models.RenewalCode{}, fmt.Errorf("could not generate a collision-free code after %d attempts", maxAttempts)
}

// token builds "<prefix><length><unit abbrev>-<random hex>". The suffix
// comes from crypto/rand so codes are never predictable from sequence.
func token(cfg models.RenewalSettings, length int, unit string) string {
	n := cfg.CodeRandomLen
	if n < 2 {
		n = 2
	}
	buf := make([]byte, (n+1)/2)
	if _, err := crand.Read(buf); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; there is no safe fallback.
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return fmt.Sprintf("%s%d%s-%s", cfg.CodePrefix, length, unitAbbrev(unit), hex.EncodeToString(buf)[:n])
}

// Redeem consumes one use of the code and extends the group's membership,
// creating the record when the group is unknown. The new expiry is
// max(now, current expiry) + the code's extension: redeeming against an
// already-expired group restarts the clock from today instead of
// compounding from a stale past date. Both halves commit together; if the
// membership write fails, the consumed use is returned.
func (e *Engine) Redeem(ctx context.Context, code, groupID, redeemedBy string) (models.Membership, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.Membership{}, fmt.Errorf("%w: code is required", ErrValidation)
	}
	if err := validateGroupID(groupID); err != nil {
		return models.Membership{}, err
	}

	unlockCode := e.locks.Lock("code:" + code)
	defer unlockCode()
	unlockGroup := e.locks.Lock("group:" + groupID)
	defer unlockGroup()

	now := e.now()
	c, err := e.codes.Consume(ctx, code, now)
	if err != nil {
		metrics.RedemptionFailures.WithLabelValues(failureReason(err)).Inc()
		return models.Membership{}, err
	}

	days := c.ExtensionDays()
	m, err := e.memberships.GetByGroup(ctx, groupID)
	switch {
	case err == nil:
		base := m.Expiry
		if base.Before(now) {
			base = now
		}
		m.Expiry = base.AddDate(0, 0, days)
		m.Status = models.MembershipActive
		m.RenewalCodeUsed = code
		m.LastReminderOn = ""
		m.ExpiredAt = nil
		if redeemedBy != "" {
			m.RenewedBy = redeemedBy
		}
		err = e.memberships.Save(ctx, m)
	case errors.Is(err, membershipstore.ErrNotFound):
		m = models.Membership{
			GroupID:         groupID,
			Expiry:          now.AddDate(0, 0, days),
			Status:          models.MembershipActive,
			RenewalCodeUsed: code,
			RenewedBy:       redeemedBy,
		}
		m, err = e.memberships.Insert(ctx, m)
	}
	if err != nil {
		if uerr := e.codes.Unconsume(ctx, code); uerr != nil {
			e.log.Error("redemption rollback failed; code use lost",
				zap.String("group_id", groupID),
				zap.Error(uerr))
		}
		return models.Membership{}, err
	}

	if c.Exhausted() {
		if derr := e.codes.Delete(ctx, code); derr != nil {
			e.log.Warn("exhausted code cleanup failed",
				zap.Error(derr))
		}
	}

	metrics.Redemptions.Inc()
	e.log.Info("renewal code redeemed",
		zap.String("group_id", groupID),
		zap.Int("days", days),
		zap.Time("new_expiry", m.Expiry))
	return m, nil
}

// Ref identifies a membership either by internal id (unambiguous, must
// exist) or by external group id.
type Ref struct {
	ID      primitive.ObjectID
	GroupID string
}

// Meta carries optional metadata edits; nil fields leave the stored value
// alone.
type Meta struct {
	ManagedByBot *string
	Remark       *string
	RenewedBy    *string
}

func (meta Meta) apply(m *models.Membership) {
	if meta.ManagedByBot != nil {
		m.ManagedByBot = *meta.ManagedByBot
	}
	if meta.Remark != nil {
		m.Remark = *meta.Remark
	}
	if meta.RenewedBy != nil {
		m.RenewedBy = *meta.RenewedBy
	}
}

// Extend lengthens a membership by length/unit using the same
// max(now, current) rule as redemption. A Ref by internal id must resolve
// to an existing record; a Ref by group id creates the record when absent.
func (e *Engine) Extend(ctx context.Context, ref Ref, length int, unit string, meta Meta) (models.Membership, error) {
	if length <= 0 {
		return models.Membership{}, fmt.Errorf("%w: length must be positive, got %d", ErrValidation, length)
	}
	canonical, err := NormalizeUnit(unit)
	if err != nil {
		return models.Membership{}, err
	}
	days := DaysFor(length, canonical)

	if !ref.ID.IsZero() {
		return e.extendByID(ctx, ref.ID, days, meta)
	}
	if err := validateGroupID(ref.GroupID); err != nil {
		return models.Membership{}, err
	}

	unlock := e.locks.Lock("group:" + ref.GroupID)
	defer unlock()

	now := e.now()
	m, err := e.memberships.GetByGroup(ctx, ref.GroupID)
	if errors.Is(err, membershipstore.ErrNotFound) {
		m = models.Membership{
			GroupID: ref.GroupID,
			Expiry:  now.AddDate(0, 0, days),
			Status:  models.MembershipActive,
		}
		meta.apply(&m)
		return e.memberships.Insert(ctx, m)
	}
	if err != nil {
		return models.Membership{}, err
	}
	return e.extendExisting(ctx, m, days, meta, now)
}

func (e *Engine) extendByID(ctx context.Context, id primitive.ObjectID, days int, meta Meta) (models.Membership, error) {
	m, err := e.memberships.GetByID(ctx, id)
	if err != nil {
		return models.Membership{}, err
	}

	unlock := e.locks.Lock("group:" + m.GroupID)
	defer unlock()

	// Re-read under the lock; a concurrent edit may have landed between
	// the lookup and the lock.
	m, err = e.memberships.GetByID(ctx, id)
	if err != nil {
		return models.Membership{}, err
	}
	return e.extendExisting(ctx, m, days, meta, e.now())
}

func (e *Engine) extendExisting(ctx context.Context, m models.Membership, days int, meta Meta, now time.Time) (models.Membership, error) {
	base := m.Expiry
	if base.Before(now) {
		base = now
	}
	m.Expiry = base.AddDate(0, 0, days)
	m.Status = models.MembershipActive
	m.LastReminderOn = ""
	m.ExpiredAt = nil
	meta.apply(&m)

	if err := e.memberships.Save(ctx, m); err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

// SetExpiry overrides a record's expiry outright, bypassing the
// max(now, current) rule. Used for explicit corrections; the record must
// already exist.
func (e *Engine) SetExpiry(ctx context.Context, ref Ref, expiry time.Time, meta Meta) (models.Membership, error) {
	if expiry.IsZero() {
		return models.Membership{}, fmt.Errorf("%w: expiry is required", ErrValidation)
	}

	var (
		m   models.Membership
		err error
	)
	if !ref.ID.IsZero() {
		m, err = e.memberships.GetByID(ctx, ref.ID)
	} else {
		if err := validateGroupID(ref.GroupID); err != nil {
			return models.Membership{}, err
		}
		m, err = e.memberships.GetByGroup(ctx, ref.GroupID)
	}
	if err != nil {
		return models.Membership{}, err
	}

	unlock := e.locks.Lock("group:" + m.GroupID)
	defer unlock()

	m, err = e.memberships.GetByID(ctx, m.ID)
	if err != nil {
		return models.Membership{}, err
	}

	m.Expiry = expiry
	if expiry.After(e.now()) {
		m.Status = models.MembershipActive
		m.ExpiredAt = nil
	}
	m.LastReminderOn = ""
	meta.apply(&m)

	if err := e.memberships.Save(ctx, m); err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

// Create adds a record for a group that must not already have one. Either
// an absolute expiry or a length/unit pair (counted from now) is required.
// Callers needing idempotent upsert semantics use Extend instead.
func (e *Engine) Create(ctx context.Context, groupID string, expiry *time.Time, length int, unit string, meta Meta) (models.Membership, error) {
	if err := validateGroupID(groupID); err != nil {
		return models.Membership{}, err
	}

	now := e.now()
	var at time.Time
	switch {
	case expiry != nil && !expiry.IsZero():
		at = *expiry
	case length > 0:
		canonical, err := NormalizeUnit(unit)
		if err != nil {
			return models.Membership{}, err
		}
		at = now.AddDate(0, 0, DaysFor(length, canonical))
	default:
		return models.Membership{}, fmt.Errorf("%w: an expiry or a positive length is required", ErrValidation)
	}

	unlock := e.locks.Lock("group:" + groupID)
	defer unlock()

	m := models.Membership{
		GroupID: groupID,
		Expiry:  at,
		Status:  models.MembershipActive,
	}
	meta.apply(&m)
	return e.memberships.Insert(ctx, m)
}

func validateGroupID(groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return fmt.Errorf("%w: group_id is required", ErrValidation)
	}
	if groupID == models.ReservedDataKey {
		return fmt.Errorf("%w: %q is a reserved key", ErrValidation, groupID)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, codestore.ErrNotFound):
		return "not_found"
	case errors.Is(err, codestore.ErrExhausted):
		return "exhausted"
	case errors.Is(err, codestore.ErrExpired):
		return "expired"
	default:
		return "error"
	}
}
