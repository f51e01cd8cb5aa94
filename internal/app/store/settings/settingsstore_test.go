// internal/app/store/settings/settingsstore_test.go
package settingsstore_test

import (
	"encoding/json"
	"strings"
	"testing"

	settingsstore "github.com/dalemusser/renewhub/internal/app/store/settings"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"github.com/dalemusser/renewhub/internal/testutil"
)

func TestConfigRoundTrip(t *testing.T) {
	s := settingsstore.New(testutil.SetupTestDB(t))
	ctx := testutil.TestContext(t)

	in := map[string]any{
		"member_renewal_soon_threshold_days": 14,
		"ui": map[string]any{"theme": "dark"},
	}
	if err := s.PutConfig(ctx, in); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	got, err := s.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	// Nested documents come back as driver map types; compare via JSON so
	// the check does not depend on the concrete decode type.
	buf, err := json.Marshal(got["ui"])
	if err != nil {
		t.Fatalf("marshal ui subtree: %v", err)
	}
	if !strings.Contains(string(buf), `"theme":"dark"`) {
		t.Errorf("opaque subtree lost: %s", buf)
	}
}

func TestGetConfigEmpty(t *testing.T) {
	s := settingsstore.New(testutil.SetupTestDB(t))

	got, err := s.GetConfig(testutil.TestContext(t))
	if err != nil {
		t.Fatalf("GetConfig on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty config, got %v", got)
	}
}

func TestRenewalDefaults(t *testing.T) {
	s := settingsstore.New(testutil.SetupTestDB(t))

	cfg, err := s.Renewal(testutil.TestContext(t))
	if err != nil {
		t.Fatalf("Renewal: %v", err)
	}
	want := models.DefaultRenewalSettings()
	if cfg.SoonThresholdDays != want.SoonThresholdDays || cfg.CodePrefix != want.CodePrefix {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestRenewalOverrides(t *testing.T) {
	s := settingsstore.New(testutil.SetupTestDB(t))
	ctx := testutil.TestContext(t)

	err := s.PutConfig(ctx, map[string]any{
		"member_renewal_soon_threshold_days":  3,
		"member_renewal_timezone":             "UTC",
		"member_renewal_auto_leave_on_expire": false,
		"member_renewal_code_prefix":          "vip",
		"member_renewal_grace_days":           2,
		"unrelated_console_key":               "ignored",
	})
	if err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	cfg, err := s.Renewal(ctx)
	if err != nil {
		t.Fatalf("Renewal: %v", err)
	}
	if cfg.SoonThresholdDays != 3 || cfg.Timezone != "UTC" || cfg.AutoLeaveOnExpire || cfg.CodePrefix != "vip" || cfg.GraceDays != 2 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	// Keys the consoles did not set keep their defaults.
	if cfg.DailyRemindOnce != true || cfg.CodeRandomLen != models.DefaultCodeRandomLen {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestPermissionsRoundTrip(t *testing.T) {
	s := settingsstore.New(testutil.SetupTestDB(t))
	ctx := testutil.TestContext(t)

	if err := s.PutPermissions(ctx, map[string]any{"admins": []any{"1001"}}); err != nil {
		t.Fatalf("PutPermissions: %v", err)
	}
	got, err := s.GetPermissions(ctx)
	if err != nil {
		t.Fatalf("GetPermissions: %v", err)
	}
	if _, ok := got["admins"]; !ok {
		t.Errorf("permissions lost: %v", got)
	}
}
