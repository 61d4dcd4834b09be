package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/TobiasWagner/GameVault/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateByEmail resolves an email to its user, creating the account on
// first contact. The second return value reports whether the user was created.
func (r *userRepository) GetOrCreateByEmail(email string) (*models.User, bool, error) {
	normalized := normalizeEmail(email)

	user, err := r.GetByEmail(normalized)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user, err = models.NewUser(normalized)
	if err != nil {
		return nil, false, err
	}
	if err := r.db.Create(user).Error; err != nil {
		// A concurrent sign-in for the same address may have created the row
		// between lookup and insert; the unique index makes this safe to retry.
		if existing, lookupErr := r.GetByEmail(normalized); lookupErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// UpdateLastLogin stamps the user's last login time
func (r *userRepository) UpdateLastLogin(id uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		Update("last_login_at", time.Now()).Error
}

// Delete soft deletes a user by their ID
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
