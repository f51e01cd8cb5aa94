// internal/domain/models/renewalsettings.go
package models

import "time"

// Defaults used when the console has not saved a config yet (or has saved a
// partial one). DefaultRemindTemplate supports {days} and {expiry}
// placeholders.
const (
	DefaultTimezone          = "Asia/Shanghai"
	DefaultSoonThresholdDays = 7
	DefaultRemindTemplate    = "This group's membership expires in {days} day(s), on {expiry}. Please contact an admin to renew."
	DefaultCodePrefix        = "renew"
	DefaultCodeRandomLen     = 6
)

// RenewalSettings is the typed view of the console config keys that govern
// classification, reminders, auto-leave, and code generation. The settings
// store re-reads them on every use, so operator edits through the console
// take effect without a restart.
type RenewalSettings struct {
	Timezone          string
	SoonThresholdDays int

	// DailyRemindOnce suppresses a second reminder to a group that was
	// already reminded today (tracked via Membership.LastReminderOn).
	DailyRemindOnce bool
	RemindTemplate  string
	ContactSuffix   string

	AutoLeaveOnExpire bool

	// GraceDays delays removal of an expired record after the sweep has
	// marked it expired. Zero removes it in the same pass.
	GraceDays int

	CodePrefix    string
	CodeRandomLen int
	CodeMaxUse    int

	// CodeExpireDays makes newly generated codes unredeemable after this
	// many days. Zero means codes never expire on their own.
	CodeExpireDays int
}

// DefaultRenewalSettings returns the settings used before an operator has
// saved any configuration.
func DefaultRenewalSettings() RenewalSettings {
	return RenewalSettings{
		Timezone:          DefaultTimezone,
		SoonThresholdDays: DefaultSoonThresholdDays,
		DailyRemindOnce:   true,
		RemindTemplate:    DefaultRemindTemplate,
		AutoLeaveOnExpire: true,
		CodePrefix:        DefaultCodePrefix,
		CodeRandomLen:     DefaultCodeRandomLen,
		CodeMaxUse:        1,
	}
}

// Location resolves the configured timezone, falling back to UTC+8 when the
// name is invalid or unavailable on the host.
func (s RenewalSettings) Location() *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	return time.FixedZone("UTC+8", 8*60*60)
}
