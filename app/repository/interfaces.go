package repository

import (
	"time"

	"github.com/mpolivanov/lavagate/app/models"
	"gorm.io/gorm"
)

// MembershipRepository defines the interface for membership-related database operations
type MembershipRepository interface {
	Get(userID int64) (*models.Membership, error)
	Upsert(m *models.Membership) error
	SetStatus(userID int64, status string) error
	ListByStatus(statuses ...string) ([]models.Membership, error)
	Delete(userID int64) error
	Reset() error
}

// PaymentEventRepository defines the interface for payment-event database operations
type PaymentEventRepository interface {
	Insert(e *models.PaymentEvent) (uint, error)
	GetByID(id uint) (*models.PaymentEvent, error)
	LatestSuccessful(buyerEmail string) (*models.PaymentEvent, error)
	ListUnprocessed() ([]models.PaymentEvent, error)
	MarkProcessed(id uint) error
	Reset() error
}

// ShortLinkRepository defines the interface for short-link database operations
type ShortLinkRepository interface {
	Create(link *models.ShortLink) error
	GetByCode(code string) (*models.ShortLink, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Membership   MembershipRepository
	PaymentEvent PaymentEventRepository
	ShortLink    ShortLinkRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Membership:   NewMembershipRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
		ShortLink:    NewShortLinkRepository(db),
	}
}
