package models

import "time"

// ShortLink shortens outbound payment URLs so Telegram messages stay compact.
// VisitCount is batched through redis and flushed periodically.
type ShortLink struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Code       string    `gorm:"type:varchar(16);not null;uniqueIndex" json:"code"`
	TargetURL  string    `gorm:"type:text;not null" json:"target_url"`
	VisitCount int64     `gorm:"not null;default:0" json:"visit_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
