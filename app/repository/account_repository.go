package repository

import (
	"github.com/TobiasWagner/GameVault/app/models"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// GetLatestMembershipByUser retrieves the user's most recent membership row
func (r *accountRepository) GetLatestMembershipByUser(userID uint) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListPurchasesByUser retrieves the user's purchases, newest first
func (r *accountRepository) ListPurchasesByUser(userID uint, limit int) ([]models.Purchase, error) {
	if limit <= 0 {
		limit = 50
	}
	var purchases []models.Purchase
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&purchases).Error
	return purchases, err
}

// CountPurchasesByUser returns the number of purchases recorded for the user
func (r *accountRepository) CountPurchasesByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Purchase{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
