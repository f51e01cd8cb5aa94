// internal/app/system/sweep/sweep.go

// Package sweep implements the reconciliation pass over membership
// records: remind soon-to-expire groups, leave and remove expired ones.
// Every record is handled independently and idempotently; one record's
// failure never aborts the pass.
package sweep

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/renewhub/internal/app/system/expiry"
	"github.com/dalemusser/renewhub/internal/app/system/metrics"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier delivers a reminder to one group. The bot client implements it.
type Notifier interface {
	NotifyGroup(ctx context.Context, groupID, preferredBot, content string) error
}

// GroupLeaver makes the bot depart a group. The bot client implements it.
type GroupLeaver interface {
	LeaveGroup(ctx context.Context, groupID, preferredBot string) error
}

// MembershipStore is the subset of the memberships store the sweep needs.
type MembershipStore interface {
	All(ctx context.Context) ([]models.Membership, error)
	MarkExpired(ctx context.Context, id primitive.ObjectID, at time.Time) error
	SetLastReminder(ctx context.Context, id primitive.ObjectID, day string) error
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
}

// SettingsReader supplies the runtime renewal settings at the start of
// each pass.
type SettingsReader interface {
	Renewal(ctx context.Context) (models.RenewalSettings, error)
}

// RecordError ties a failure to the record it happened on.
type RecordError struct {
	GroupID string `json:"group_id"`
	Op      string `json:"op"`
	Error   string `json:"error"`
}

// Result aggregates one reconciliation pass.
type Result struct {
	RunID    string        `json:"run_id"`
	Reminded int           `json:"reminded"`
	Left     int           `json:"left"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// Sweeper runs reconciliation passes. It is safe to trigger concurrently
// with engine mutations: record updates go through guarded store calls and
// an already-renewed record simply classifies as active.
type Sweeper struct {
	memberships MembershipStore
	settings    SettingsReader
	notifier    Notifier
	leaver      GroupLeaver
	log         *zap.Logger
	now         func() time.Time
}

func New(memberships MembershipStore, settings SettingsReader, notifier Notifier, leaver GroupLeaver, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		memberships: memberships,
		settings:    settings,
		notifier:    notifier,
		leaver:      leaver,
		log:         logger,
		now:         time.Now,
	}
}

// WithClock overrides the sweeper's time source. Tests freeze time with it.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run performs one pass. It returns an error only when the pass could not
// start (settings or listing failed); per-record failures are collected in
// the Result instead.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}

	cfg, err := s.settings.Renewal(ctx)
	if err != nil {
		return res, err
	}
	loc := cfg.Location()
	now := s.now()
	today := now.In(loc).Format("2006-01-02")

	records, err := s.memberships.All(ctx)
	if err != nil {
		return res, err
	}

	for _, m := range records {
		switch expiry.Classify(m.Expiry, now, cfg.SoonThresholdDays, loc) {
		case expiry.Soon, expiry.Today:
			s.remind(ctx, m, cfg, now, loc, today, &res)
		case expiry.Expired:
			s.retire(ctx, m, cfg, now, &res)
		}
		// active: nothing to do
	}

	metrics.SweepRuns.Inc()
	metrics.SweepRecordErrors.Add(float64(len(res.Errors)))
	s.log.Info("reconciliation sweep finished",
		zap.String("run_id", res.RunID),
		zap.Int("records", len(records)),
		zap.Int("reminded", res.Reminded),
		zap.Int("left", res.Left),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (s *Sweeper) remind(ctx context.Context, m models.Membership, cfg models.RenewalSettings, now time.Time, loc *time.Location, today string, res *Result) {
	if cfg.DailyRemindOnce && m.LastReminderOn == today {
		return
	}

	content := ReminderContent(cfg, m.Expiry, now, loc)
	if err := s.notifier.NotifyGroup(ctx, m.GroupID, m.ManagedByBot, content); err != nil {
		res.Errors = append(res.Errors, RecordError{GroupID: m.GroupID, Op: "remind", Error: err.Error()})
		s.log.Warn("reminder delivery failed",
			zap.String("group_id", m.GroupID),
			zap.Error(err))
		return
	}
	// The reminder is out either way; count it before the watermark write.
	res.Reminded++
	metrics.RemindersSent.Inc()
	if err := s.memberships.SetLastReminder(ctx, m.ID, today); err != nil {
		// Next run may repeat the reminder. Record and move on.
		res.Errors = append(res.Errors, RecordError{GroupID: m.GroupID, Op: "watermark", Error: err.Error()})
	}
}

func (s *Sweeper) retire(ctx context.Context, m models.Membership, cfg models.RenewalSettings, now time.Time, res *Result) {
	if m.Status != models.MembershipExpired {
		if cfg.AutoLeaveOnExpire {
			if err := s.leaver.LeaveGroup(ctx, m.GroupID, m.ManagedByBot); err != nil {
				res.Errors = append(res.Errors, RecordError{GroupID: m.GroupID, Op: "leave", Error: err.Error()})
				s.log.Warn("group departure failed",
					zap.String("group_id", m.GroupID),
					zap.Error(err))
				return // retried next run; record stays active until we leave
			}
			res.Left++
			metrics.GroupsLeft.Inc()
		}
		if err := s.memberships.MarkExpired(ctx, m.ID, now); err != nil {
			res.Errors = append(res.Errors, RecordError{GroupID: m.GroupID, Op: "mark_expired", Error: err.Error()})
			return
		}
		m.ExpiredAt = &now
	}

	// Remove once the grace window has elapsed. Grace zero removes the
	// record in the same pass that marked it.
	if m.ExpiredAt != nil && !now.Before(m.ExpiredAt.AddDate(0, 0, cfg.GraceDays)) {
		if err := s.memberships.DeleteByID(ctx, m.ID); err != nil {
			res.Errors = append(res.Errors, RecordError{GroupID: m.GroupID, Op: "remove", Error: err.Error()})
		}
	}
}

// ReminderContent renders the configured template, substituting {days} and
// {expiry}, and appends the contact suffix when it is not already present.
// The console's manual remind endpoint uses it too.
func ReminderContent(cfg models.RenewalSettings, expiresAt, now time.Time, loc *time.Location) string {
	days := expiry.DaysUntil(expiresAt, now, loc)
	content := cfg.RemindTemplate
	content = strings.ReplaceAll(content, "{days}", strconv.Itoa(days))
	content = strings.ReplaceAll(content, "{expiry}", expiresAt.In(loc).Format("2006-01-02 15:04"))
	if suffix := strings.TrimSpace(cfg.ContactSuffix); suffix != "" && !strings.Contains(content, suffix) {
		content += " " + suffix
	}
	return content
}
