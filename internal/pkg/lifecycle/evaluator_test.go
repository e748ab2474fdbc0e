package lifecycle

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/app/repository"
)

func newTestRepos(t *testing.T) (repository.MembershipRepository, repository.PaymentEventRepository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PaymentEvent{}, &models.Membership{}))

	return repository.NewMembershipRepository(db), repository.NewPaymentEventRepository(db)
}

func newTestEvaluator(t *testing.T, now time.Time) (*Evaluator, repository.MembershipRepository, repository.PaymentEventRepository) {
	t.Helper()

	memberships, payments := newTestRepos(t)
	e := NewEvaluator(memberships, payments)
	e.now = func() time.Time { return now }
	return e, memberships, payments
}

func insertEvent(t *testing.T, payments repository.PaymentEventRepository, e *models.PaymentEvent) uint {
	t.Helper()

	if e.Currency == "" {
		e.Currency = "RUB"
	}
	if e.Status == "" {
		e.Status = "completed"
	}
	if e.RawPayload == "" {
		e.RawPayload = "{}"
	}
	id, err := payments.Insert(e)
	require.NoError(t, err)
	return id
}

func TestEvaluateActiveMembershipWins(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	e, memberships, payments := newTestEvaluator(t, now)

	eventID := insertEvent(t, payments, &models.PaymentEvent{
		EventType:  models.EventTypePaymentSuccess,
		BuyerEmail: "42@t.me",
		ContractID: "c-root",
		Amount:     500,
		Timestamp:  "2024-01-01T00:00:00Z",
	})

	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, memberships.Upsert(&models.Membership{
		UserID:      42,
		Status:      models.MembershipStatusActive,
		JoinedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:   &end,
		LastEventID: &eventID,
	}))

	ev := e.Evaluate(42)
	assert.Equal(t, StatusActive, ev.Status)
	require.NotNil(t, ev.ExpiresAt)
	assert.True(t, ev.ExpiresAt.Equal(end), "evaluation must carry the exact stored end date")
	assert.Equal(t, "c-root", ev.ContractID)
}

func TestEvaluateCancelledKeepsAccessUntilEndDate(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	e, memberships, payments := newTestEvaluator(t, now)

	parent := "c-root"
	eventID := insertEvent(t, payments, &models.PaymentEvent{
		EventType:        models.EventTypeRecurringSuccess,
		BuyerEmail:       "42@t.me",
		ContractID:       "c-recurring",
		ParentContractID: &parent,
		Amount:           500,
		Timestamp:        "2024-01-16T00:00:00Z",
	})

	end := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, memberships.Upsert(&models.Membership{
		UserID:      42,
		Status:      models.MembershipStatusCancelled,
		JoinedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:   &end,
		LastEventID: &eventID,
	}))

	ev := e.Evaluate(42)
	assert.Equal(t, StatusCancelled, ev.Status)
	require.NotNil(t, ev.ExpiresAt)
	assert.True(t, ev.ExpiresAt.Equal(end))
	// Cancellation always targets the root contract.
	assert.Equal(t, "c-root", ev.ContractID)
}

func TestEvaluateExpiredRecordFallsBackToPaymentEvent(t *testing.T) {
	now := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	e, memberships, payments := newTestEvaluator(t, now)

	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, memberships.Upsert(&models.Membership{
		UserID:    42,
		Status:    models.MembershipStatusActive,
		JoinedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt: &end,
	}))

	// A newer charge the membership record has not caught up with.
	insertEvent(t, payments, &models.PaymentEvent{
		EventType:  models.EventTypePaymentSuccess,
		BuyerEmail: "42@t.me",
		ContractID: "c-2",
		Amount:     500,
		Timestamp:  "2024-02-01T00:00:00Z",
	})

	ev := e.Evaluate(42)
	assert.Equal(t, StatusActive, ev.Status)
	require.NotNil(t, ev.ExpiresAt)
	// 2024-02-01 + 30 days.
	assert.True(t, ev.ExpiresAt.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "c-2", ev.ContractID)
}

func TestEvaluateDerivedEndDateInPast(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e, _, payments := newTestEvaluator(t, now)

	insertEvent(t, payments, &models.PaymentEvent{
		EventType:  models.EventTypePaymentSuccess,
		BuyerEmail: "42@t.me",
		ContractID: "c-1",
		Amount:     500,
		Timestamp:  "2024-01-01T00:00:00Z",
	})

	ev := e.Evaluate(42)
	assert.Equal(t, StatusInactive, ev.Status)
}

func TestEvaluateNoRecords(t *testing.T) {
	e, _, _ := newTestEvaluator(t, time.Now())

	ev := e.Evaluate(42)
	assert.Equal(t, StatusNoSubscription, ev.Status)
	assert.NoError(t, ev.Err)
}

func TestEvaluateRemovedMembershipIgnored(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	e, memberships, _ := newTestEvaluator(t, now)

	end := now.AddDate(0, 0, 10)
	require.NoError(t, memberships.Upsert(&models.Membership{
		UserID:    42,
		Status:    models.MembershipStatusRemoved,
		JoinedAt:  now.AddDate(0, -1, 0),
		ExpiresAt: &end,
	}))

	ev := e.Evaluate(42)
	assert.Equal(t, StatusNoSubscription, ev.Status)
}

type failingMembershipRepo struct {
	repository.MembershipRepository
}

func (f failingMembershipRepo) Get(userID int64) (*models.Membership, error) {
	return nil, errors.New("database is locked")
}

func TestEvaluateStoreErrorIsDistinct(t *testing.T) {
	memberships, payments := newTestRepos(t)
	e := NewEvaluator(failingMembershipRepo{memberships}, payments)

	ev := e.Evaluate(42)
	assert.Equal(t, StatusError, ev.Status)
	assert.Error(t, ev.Err)
}
