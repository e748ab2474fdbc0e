package repository

import (
	"github.com/mpolivanov/lavagate/app/models"
	"gorm.io/gorm"
)

// paymentEventRepository implements the PaymentEventRepository interface
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment-event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// Insert stores a new payment event and returns its generated ID
func (r *paymentEventRepository) Insert(e *models.PaymentEvent) (uint, error) {
	if err := r.db.Create(e).Error; err != nil {
		return 0, err
	}
	return e.ID, nil
}

// GetByID retrieves a payment event by its ID
func (r *paymentEventRepository) GetByID(id uint) (*models.PaymentEvent, error) {
	var e models.PaymentEvent
	err := r.db.First(&e, id).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestSuccessful returns the most recent successful charge for a buyer,
// ordered by the gateway event timestamp.
func (r *paymentEventRepository) LatestSuccessful(buyerEmail string) (*models.PaymentEvent, error) {
	var e models.PaymentEvent
	err := r.db.
		Where("buyer_email = ? AND event_type IN ?", buyerEmail,
			[]string{models.EventTypePaymentSuccess, models.EventTypeRecurringSuccess}).
		Order("timestamp DESC").
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListUnprocessed returns all events the consumer sweep has not acted on yet
func (r *paymentEventRepository) ListUnprocessed() ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.Where("processed = ?", false).Order("id ASC").Find(&events).Error
	return events, err
}

// MarkProcessed flips the processed flag for one event
func (r *paymentEventRepository) MarkProcessed(id uint) error {
	return r.db.Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Update("processed", true).Error
}

// Reset drops every payment event (administrative reset only)
func (r *paymentEventRepository) Reset() error {
	return r.db.Where("1 = 1").Delete(&models.PaymentEvent{}).Error
}
