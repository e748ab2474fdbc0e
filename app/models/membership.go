package models

import "time"

const (
	MembershipStatusActive    = "active"
	MembershipStatusCancelled = "cancelled"
	MembershipStatusRemoved   = "removed"
)

// Membership mirrors a user's channel access state, at most one row per user.
// ExpiresAt must be set whenever Status is active or cancelled; it is nil only
// transiently while a row is being written.
type Membership struct {
	UserID      int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Status      string     `gorm:"type:varchar(16);not null;index" json:"status"`
	JoinedAt    time.Time  `gorm:"not null" json:"joined_at"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at,omitempty"`
	LastEventID *uint      `json:"last_event_id,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasAccess reports whether the membership still grants channel access:
// active or cancelled (auto-renew off, paid period not over) with an end date
// in the future.
func (m *Membership) HasAccess(now time.Time) bool {
	if m.Status != MembershipStatusActive && m.Status != MembershipStatusCancelled {
		return false
	}
	return m.ExpiresAt != nil && m.ExpiresAt.After(now)
}
