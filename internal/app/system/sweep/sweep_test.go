// internal/app/system/sweep/sweep_test.go
package sweep_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	"github.com/dalemusser/renewhub/internal/app/system/sweep"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"github.com/dalemusser/renewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var frozen = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func utcSettings() models.RenewalSettings {
	cfg := models.DefaultRenewalSettings()
	cfg.Timezone = "UTC"
	return cfg
}

func newSweeper(mems *testutil.MemMemberships, settings *testutil.MemSettings, bot *testutil.FakeBot) *sweep.Sweeper {
	return sweep.New(mems, settings, bot, bot, zap.NewNop()).
		WithClock(func() time.Time { return frozen })
}

func TestRunRemindsSoonGroups(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(
		models.Membership{GroupID: "soon", Expiry: frozen.AddDate(0, 0, 3), Status: models.MembershipActive},
		models.Membership{GroupID: "today", Expiry: frozen.Add(2 * time.Hour), Status: models.MembershipActive},
		models.Membership{GroupID: "far", Expiry: frozen.AddDate(0, 0, 90), Status: models.MembershipActive},
	)
	bot := &testutil.FakeBot{}
	s := newSweeper(mems, testutil.NewMemSettings(utcSettings()), bot)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reminded != 2 {
		t.Fatalf("reminded: got %d, want 2", res.Reminded)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if calls := bot.CallsFor("far"); len(calls) != 0 {
		t.Error("group far from expiry must not be reminded")
	}

	calls := bot.CallsFor("soon")
	if len(calls) != 1 {
		t.Fatalf("calls for soon group: got %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Content, "3") {
		t.Errorf("reminder content should carry the days left: %q", calls[0].Content)
	}

	// The watermark was written, so the next pass stays quiet.
	res2, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res2.Reminded != 0 {
		t.Errorf("second pass on the same day reminded %d groups, want 0", res2.Reminded)
	}
}

func TestRunRemindsAgainWhenDailyOnceDisabled(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(models.Membership{
		GroupID:        "soon",
		Expiry:         frozen.AddDate(0, 0, 2),
		Status:         models.MembershipActive,
		LastReminderOn: frozen.Format("2006-01-02"),
	})
	cfg := utcSettings()
	cfg.DailyRemindOnce = false
	bot := &testutil.FakeBot{}
	s := newSweeper(mems, testutil.NewMemSettings(cfg), bot)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reminded != 1 {
		t.Errorf("reminded: got %d, want 1", res.Reminded)
	}
}

// stuckWatermarks delivers reminders but cannot persist the daily watermark.
type stuckWatermarks struct {
	*testutil.MemMemberships
}

func (stuckWatermarks) SetLastReminder(ctx context.Context, id primitive.ObjectID, day string) error {
	return errors.New("write failed")
}

func TestRunCountsReminderWhenWatermarkFails(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(models.Membership{GroupID: "soon", Expiry: frozen.AddDate(0, 0, 2), Status: models.MembershipActive})
	bot := &testutil.FakeBot{}
	s := sweep.New(stuckWatermarks{mems}, testutil.NewMemSettings(utcSettings()), bot, bot, zap.NewNop()).
		WithClock(func() time.Time { return frozen })

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(bot.CallsFor("soon")) != 1 {
		t.Fatal("reminder should have been delivered")
	}
	// The delivered reminder counts even though the watermark write failed.
	if res.Reminded != 1 {
		t.Errorf("reminded: got %d, want 1", res.Reminded)
	}
	if len(res.Errors) != 1 || res.Errors[0].Op != "watermark" {
		t.Errorf("expected one watermark error, got %v", res.Errors)
	}
}

func TestRunRetiresExpiredGroups(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(models.Membership{GroupID: "dead", Expiry: frozen.AddDate(0, 0, -2), Status: models.MembershipActive})
	bot := &testutil.FakeBot{}
	s := newSweeper(mems, testutil.NewMemSettings(utcSettings()), bot)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Left != 1 {
		t.Fatalf("left: got %d, want 1", res.Left)
	}
	if calls := bot.CallsFor("dead"); len(calls) != 1 || calls[0].Action != "leave" {
		t.Fatalf("expected one leave call, got %v", calls)
	}
	// Grace zero removes the record in the same pass.
	if _, err := mems.GetByGroup(context.Background(), "dead"); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Error("expired record should be removed")
	}
}

func TestRunGraceWindowDelaysRemoval(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(models.Membership{GroupID: "grace", Expiry: frozen.AddDate(0, 0, -1), Status: models.MembershipActive})
	cfg := utcSettings()
	cfg.GraceDays = 3
	bot := &testutil.FakeBot{}
	s := newSweeper(mems, testutil.NewMemSettings(cfg), bot)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	m, err := mems.GetByGroup(context.Background(), "grace")
	if err != nil {
		t.Fatal("record should survive the grace window")
	}
	if m.Status != models.MembershipExpired || m.ExpiredAt == nil {
		t.Fatalf("record should be marked expired: status=%q expired_at=%v", m.Status, m.ExpiredAt)
	}

	// Within the window: still there.
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := mems.GetByGroup(context.Background(), "grace"); err != nil {
		t.Fatal("record removed before the grace window elapsed")
	}

	// After the window: gone.
	late := s.WithClock(func() time.Time { return frozen.AddDate(0, 0, 4) })
	if _, err := late.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := mems.GetByGroup(context.Background(), "grace"); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Error("record should be removed after the grace window")
	}
}

func TestRunAutoLeaveDisabled(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(models.Membership{GroupID: "keep", Expiry: frozen.AddDate(0, 0, -5), Status: models.MembershipActive})
	cfg := utcSettings()
	cfg.AutoLeaveOnExpire = false
	bot := &testutil.FakeBot{}
	s := newSweeper(mems, testutil.NewMemSettings(cfg), bot)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Left != 0 {
		t.Errorf("left: got %d, want 0", res.Left)
	}
	if len(bot.Calls) != 0 {
		t.Errorf("no bot calls expected, got %v", bot.Calls)
	}
}

func TestRunCollectsPerRecordErrors(t *testing.T) {
	mems := testutil.NewMemMemberships()
	mems.Seed(
		models.Membership{GroupID: "bad", Expiry: frozen.AddDate(0, 0, 1), Status: models.MembershipActive},
		models.Membership{GroupID: "dead", Expiry: frozen.AddDate(0, 0, -1), Status: models.MembershipActive},
	)
	bot := &testutil.FakeBot{Err: errors.New("bot host down")}
	s := newSweeper(mems, testutil.NewMemSettings(utcSettings()), bot)

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("a failing record must not abort the pass: %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors: got %d, want 2 (%v)", len(res.Errors), res.Errors)
	}
	// A failed departure leaves the record for the next pass.
	if _, err := mems.GetByGroup(context.Background(), "dead"); err != nil {
		t.Error("record should survive a failed departure")
	}
}

func TestReminderContent(t *testing.T) {
	cfg := utcSettings()
	cfg.RemindTemplate = "expires in {days}d on {expiry}"
	cfg.ContactSuffix = "Contact admin."

	got := sweep.ReminderContent(cfg, frozen.AddDate(0, 0, 5), frozen, time.UTC)
	want := "expires in 5d on 2026-03-15 12:00 Contact admin."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Suffix already present in the template is not doubled.
	cfg.RemindTemplate = "renew now. Contact admin."
	got = sweep.ReminderContent(cfg, frozen.AddDate(0, 0, 5), frozen, time.UTC)
	if strings.Count(got, "Contact admin.") != 1 {
		t.Errorf("suffix doubled: %q", got)
	}
}
