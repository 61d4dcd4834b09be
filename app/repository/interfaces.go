package repository

import (
	"github.com/TobiasWagner/GameVault/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetOrCreateByEmail(email string) (*models.User, bool, error)
	Update(user *models.User) error
	UpdateLastLogin(id uint) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// LoginTokenRepository defines the interface for magic-link token operations
type LoginTokenRepository interface {
	Create(token *models.LoginToken) error
	GetByTokenID(tokenID string) (*models.LoginToken, error)
	ConsumeByTokenID(tokenID string) (*models.LoginToken, error)
	DeleteExpired() (int64, error)
}

// AccountRepository defines the interface for user-scoped account reads.
// Every query is keyed on the requesting user's id; rows belonging to other
// users are unreachable through this interface.
type AccountRepository interface {
	GetLatestMembershipByUser(userID uint) (*models.Membership, error)
	ListPurchasesByUser(userID uint, limit int) ([]models.Purchase, error)
	CountPurchasesByUser(userID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	LoginToken LoginTokenRepository
	Account    AccountRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		LoginToken: NewLoginTokenRepository(db),
		Account:    NewAccountRepository(db),
	}
}
