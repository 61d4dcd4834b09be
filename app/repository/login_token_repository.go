package repository

import (
	"time"

	"github.com/TobiasWagner/GameVault/app/models"
	"gorm.io/gorm"
)

// loginTokenRepository implements the LoginTokenRepository interface
type loginTokenRepository struct {
	db *gorm.DB
}

// NewLoginTokenRepository creates a new login token repository instance
func NewLoginTokenRepository(db *gorm.DB) LoginTokenRepository {
	return &loginTokenRepository{db: db}
}

// Create creates a new login token in the database
func (r *loginTokenRepository) Create(token *models.LoginToken) error {
	return r.db.Create(token).Error
}

// GetByTokenID retrieves a login token by its token id
func (r *loginTokenRepository) GetByTokenID(tokenID string) (*models.LoginToken, error) {
	var token models.LoginToken
	err := r.db.Where("token_id = ?", tokenID).First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ConsumeByTokenID atomically marks an unused, unexpired token as used and
// returns it. A token that is expired, already used, or unknown yields
// gorm.ErrRecordNotFound, so a magic link can never be redeemed twice.
func (r *loginTokenRepository) ConsumeByTokenID(tokenID string) (*models.LoginToken, error) {
	now := time.Now()
	tx := r.db.Model(&models.LoginToken{}).
		Where("token_id = ? AND used_at IS NULL AND expires_at > ?", tokenID, now).
		Update("used_at", now)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetByTokenID(tokenID)
}

// DeleteExpired removes tokens whose expiry has passed
func (r *loginTokenRepository) DeleteExpired() (int64, error) {
	tx := r.db.Where("expires_at <= ?", time.Now()).Delete(&models.LoginToken{})
	return tx.RowsAffected, tx.Error
}
