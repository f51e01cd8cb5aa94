// internal/domain/models/renewalcode.go
package models

import "time"

// Canonical extension units. Synonyms (d/day/天, m/month/月, y/year/年) are
// normalized by the renewal engine before a code is stored.
const (
	UnitDay   = "day"
	UnitMonth = "month"
	UnitYear  = "year"
)

// RenewalCode is a redeemable token that grants a time extension to the
// group it is redeemed against. Codes are generated with cryptographically
// strong randomness and are unique across live codes.
type RenewalCode struct {
	Code          string     `bson:"code" json:"code"`
	Length        int        `bson:"length" json:"length"`
	Unit          string     `bson:"unit" json:"unit"`
	MaxUse        int        `bson:"max_use" json:"max_use"`
	UseCount      int        `bson:"use_count" json:"use_count"`
	GeneratedTime time.Time  `bson:"generated_time" json:"generated_time"`
	ExpireAt      *time.Time `bson:"expire_at,omitempty" json:"expire_at,omitempty"`
}

// Exhausted reports whether every use of the code has been redeemed.
func (c RenewalCode) Exhausted() bool { return c.UseCount >= c.MaxUse }

// Expired reports whether the code itself is past its own expiry, which
// makes it unredeemable even if uses remain.
func (c RenewalCode) Expired(now time.Time) bool {
	return c.ExpireAt != nil && now.After(*c.ExpireAt)
}

// ExtensionDays is the extension the code grants, normalized to whole days
// (day=1, month=30, year=365).
func (c RenewalCode) ExtensionDays() int {
	switch c.Unit {
	case UnitMonth:
		return 30 * c.Length
	case UnitYear:
		return 365 * c.Length
	default:
		return c.Length
	}
}
