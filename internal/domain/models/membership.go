// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership status values stored on the document. The expiry timestamp is
// the source of truth; Status is bookkeeping the sweep maintains so expired
// groups are only left once.
const (
	MembershipActive  = "active"
	MembershipExpired = "expired"
)

// ReservedDataKey is the sibling key in the console data map that holds the
// code map instead of a membership record. Callers iterating memberships
// must filter it out, and no group may use it as its group_id.
const ReservedDataKey = "generatedCodes"

// Membership is the expiry-bearing record for one chat group.
//
// GroupID is the external identifier the consoles and the bot host key on;
// at most one live record exists per GroupID. ID is assigned on creation
// and stays stable across edits, so a caller can rename GroupID without
// losing history.
type Membership struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	GroupID string             `bson:"group_id" json:"group_id"`

	// Expiry is always set once a record exists; there is no
	// "never expires" sentinel.
	Expiry time.Time `bson:"expiry" json:"expiry"`

	// Opaque metadata carried for the consoles. The engine never
	// interprets these.
	ManagedByBot string `bson:"managed_by_bot,omitempty" json:"managed_by_bot,omitempty"`
	Remark       string `bson:"remark,omitempty" json:"remark,omitempty"`
	RenewedBy    string `bson:"renewed_by,omitempty" json:"renewed_by,omitempty"`

	// RenewalCodeUsed records the last code redeemed against this group.
	RenewalCodeUsed string `bson:"renewal_code_used,omitempty" json:"renewal_code_used,omitempty"`

	Status string `bson:"status" json:"status"`

	// LastReminderOn is the local YYYY-MM-DD day the group was last sent an
	// expiry reminder. The sweep uses it to avoid re-notifying a group that
	// was already reminded today.
	LastReminderOn string     `bson:"last_reminder_on,omitempty" json:"last_reminder_on,omitempty"`
	ExpiredAt      *time.Time `bson:"expired_at,omitempty" json:"expired_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
