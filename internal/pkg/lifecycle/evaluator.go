package lifecycle

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/app/repository"
	"github.com/mpolivanov/lavagate/internal/pkg/period"
	"github.com/mpolivanov/lavagate/internal/pkg/utils"
)

// Status is the answer to "what access does this user have right now?".
type Status string

const (
	// StatusActive: paid access, auto-renewal on.
	StatusActive Status = "active"
	// StatusCancelled: auto-renewal off, paid period not over yet.
	StatusCancelled Status = "cancelled"
	// StatusInactive: there was a subscription once, its period has passed.
	StatusInactive Status = "inactive"
	// StatusNoSubscription: no membership record and no successful payment.
	StatusNoSubscription Status = "no_subscription"
	// StatusError: the store could not be read; not the same as no_subscription.
	StatusError Status = "error"
)

// Evaluation carries the evaluated status plus everything the callers render
// or act on: the end date, the contract a cancellation must target, and the
// last known product details.
type Evaluation struct {
	Status       Status
	ExpiresAt    *time.Time
	ContractID   string
	ProductTitle string
	Amount       float64
	Currency     string
	Err          error
}

// Evaluator determines the current subscription state of a user by combining
// the membership record, the latest successful payment event, and the period
// catalogue.
type Evaluator struct {
	memberships repository.MembershipRepository
	payments    repository.PaymentEventRepository

	now func() time.Time
}

// NewEvaluator creates an evaluator over the given repositories.
func NewEvaluator(memberships repository.MembershipRepository, payments repository.PaymentEventRepository) *Evaluator {
	return &Evaluator{
		memberships: memberships,
		payments:    payments,
		now:         time.Now,
	}
}

// Evaluate answers the user's current subscription status. The membership
// record takes priority while its end date has not passed; otherwise the
// latest successful payment event decides, with an end date derived from the
// amount-to-periodicity catalogue.
func (e *Evaluator) Evaluate(userID int64) Evaluation {
	now := e.now().UTC()

	m, err := e.memberships.Get(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Evaluation{Status: StatusError, Err: err}
	}

	if m != nil && m.HasAccess(now) {
		ev := Evaluation{
			ExpiresAt: m.ExpiresAt,
		}
		switch m.Status {
		case models.MembershipStatusActive:
			ev.Status = StatusActive
		case models.MembershipStatusCancelled:
			ev.Status = StatusCancelled
		}
		e.fillFromLastEvent(&ev, m)
		return ev
	}

	// No usable record: fall back to the most recent successful charge.
	event, err := e.payments.LatestSuccessful(models.BuyerEmail(userID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Evaluation{Status: StatusNoSubscription}
		}
		return Evaluation{Status: StatusError, Err: err}
	}

	anchor, parseErr := utils.ParseTimestamp(event.Timestamp)
	if parseErr != nil {
		// Malformed stored date: anchor on when we received the event.
		anchor = event.ReceivedAt.UTC()
	}
	expires := anchor.AddDate(0, 0, period.DaysForAmount(event.Amount))

	ev := Evaluation{
		ExpiresAt:    &expires,
		ContractID:   event.RootContractID(),
		ProductTitle: event.ProductTitle,
		Amount:       event.Amount,
		Currency:     event.Currency,
	}
	if expires.After(now) {
		ev.Status = StatusActive
	} else {
		ev.Status = StatusInactive
	}
	return ev
}

// fillFromLastEvent resolves contract and product details for a live
// membership record. The payment-event lookup is best effort; a membership
// answer never degrades to an error because details are missing.
func (e *Evaluator) fillFromLastEvent(ev *Evaluation, m *models.Membership) {
	if m.LastEventID != nil {
		if event, err := e.payments.GetByID(*m.LastEventID); err == nil {
			ev.ContractID = event.RootContractID()
			ev.ProductTitle = event.ProductTitle
			ev.Amount = event.Amount
			ev.Currency = event.Currency
			return
		}
	}
	if event, err := e.payments.LatestSuccessful(models.BuyerEmail(m.UserID)); err == nil {
		ev.ContractID = event.RootContractID()
		ev.ProductTitle = event.ProductTitle
		ev.Amount = event.Amount
		ev.Currency = event.Currency
	}
}
