package repository

import (
	"time"

	"github.com/mpolivanov/lavagate/app/models"
	"gorm.io/gorm"
)

// shortLinkRepository implements the ShortLinkRepository interface
type shortLinkRepository struct {
	db *gorm.DB
}

// NewShortLinkRepository creates a new short-link repository instance
func NewShortLinkRepository(db *gorm.DB) ShortLinkRepository {
	return &shortLinkRepository{db: db}
}

// Create stores a new short link
func (r *shortLinkRepository) Create(link *models.ShortLink) error {
	return r.db.Create(link).Error
}

// GetByCode resolves a short code to its stored link
func (r *shortLinkRepository) GetByCode(code string) (*models.ShortLink, error) {
	var link models.ShortLink
	err := r.db.Where("code = ?", code).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// DeleteOlderThan removes links created before the cutoff and returns the count
func (r *shortLinkRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	tx := r.db.Where("created_at < ?", cutoff).Delete(&models.ShortLink{})
	return tx.RowsAffected, tx.Error
}
