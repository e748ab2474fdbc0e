package repository

import (
	"github.com/mpolivanov/lavagate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// membershipRepository implements the MembershipRepository interface
type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository instance
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

// Get retrieves the membership row for a user
func (r *membershipRepository) Get(userID int64) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("user_id = ?", userID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert creates or replaces the membership row for the record's user.
func (r *membershipRepository) Upsert(m *models.Membership) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"joined_at",
			"expires_at",
			"last_event_id",
			"updated_at",
		}),
	}).Create(m).Error; err != nil {
		return err
	}

	return r.db.Where("user_id = ?", m.UserID).First(m).Error
}

// SetStatus updates only the status column for a user
func (r *membershipRepository) SetStatus(userID int64, status string) error {
	return r.db.Model(&models.Membership{}).
		Where("user_id = ?", userID).
		Update("status", status).Error
}

// ListByStatus returns all memberships whose status is one of the given values
func (r *membershipRepository) ListByStatus(statuses ...string) ([]models.Membership, error) {
	var ms []models.Membership
	err := r.db.Where("status IN ?", statuses).Find(&ms).Error
	return ms, err
}

// Delete removes a user's membership row (administrative reset only)
func (r *membershipRepository) Delete(userID int64) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.Membership{}).Error
}

// Reset drops every membership row (administrative reset only)
func (r *membershipRepository) Reset() error {
	return r.db.Where("1 = 1").Delete(&models.Membership{}).Error
}
