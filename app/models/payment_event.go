package models

import "time"

// Gateway event types as delivered on the webhook (lava.top wire values).
const (
	EventTypePaymentSuccess   = "payment.success"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeRecurringSuccess = "subscription.recurring.payment.success"
	EventTypeRecurringFailed  = "subscription.recurring.payment.failed"
	EventTypeCancelled        = "subscription.cancelled"
)

// PaymentEvent stores one gateway callback (or synthetic test event) per row.
// Rows are immutable except for the Processed flag and are never deleted
// outside the administrative reset; they double as the audit trail.
type PaymentEvent struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	EventType        string    `gorm:"type:varchar(64);not null;index" json:"event_type"`
	ProductID        string    `gorm:"type:varchar(191);not null" json:"product_id"`
	ProductTitle     string    `gorm:"type:varchar(191);not null" json:"product_title"`
	BuyerEmail       string    `gorm:"type:varchar(191);not null;index" json:"buyer_email"`
	ContractID       string    `gorm:"type:varchar(191);not null" json:"contract_id"`
	ParentContractID *string   `gorm:"type:varchar(191)" json:"parent_contract_id,omitempty"`
	Amount           float64   `gorm:"not null" json:"amount"`
	Currency         string    `gorm:"type:varchar(8);not null" json:"currency"`
	Timestamp        string    `gorm:"type:varchar(64);not null" json:"timestamp"`
	Status           string    `gorm:"type:varchar(64);not null" json:"status"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message"`
	WillExpireAt     *string   `gorm:"type:varchar(64)" json:"will_expire_at,omitempty"`
	RawPayload       string    `gorm:"type:longtext;not null" json:"raw_payload"`
	ReceivedAt       time.Time `gorm:"autoCreateTime" json:"received_at"`
	Processed        bool      `gorm:"default:false;index" json:"processed"`
}

// IsSuccess reports whether the event represents a completed charge.
func (e *PaymentEvent) IsSuccess() bool {
	return e.EventType == EventTypePaymentSuccess || e.EventType == EventTypeRecurringSuccess
}

// RootContractID returns the contract a cancellation must target: the parent
// contract when the event belongs to a recurring charge, else the contract
// itself.
func (e *PaymentEvent) RootContractID() string {
	if e.ParentContractID != nil && *e.ParentContractID != "" {
		return *e.ParentContractID
	}
	return e.ContractID
}
