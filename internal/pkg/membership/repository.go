package membership

import (
	"time"

	"github.com/TobiasWagner/GameVault/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the privileged (service-level) data path used by the
// reconciliation flows. It bypasses per-user scoping because webhook and
// verification handlers act on behalf of the system, not an end user.
// End-user-facing reads go through app/repository instead.
type Repository interface {
	FindMembershipByUser(userID uint) (*models.Membership, error)
	FindActiveMembershipByUser(userID uint) (*models.Membership, error)
	FindEntitledMembershipByUser(userID uint) (*models.Membership, error)
	FindMembershipBySubscriptionID(subscriptionID string) (*models.Membership, error)
	UpsertMembershipByUser(m *models.Membership) error
	UpdateMembershipBySubscriptionID(subscriptionID string, updates map[string]interface{}) (int64, error)

	FindPurchaseBySessionID(sessionID string) (*models.Purchase, error)
	CreatePurchaseIfNotExists(p *models.Purchase) (bool, error)

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a membership repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindMembershipByUser(userID uint) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("user_id = ?", userID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindActiveMembershipByUser(userID uint) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("user_id = ? AND status = ?", userID, models.MembershipStatusActive).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindEntitledMembershipByUser(userID uint) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]string{models.MembershipStatusActive, models.MembershipStatusTrialing}).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindMembershipBySubscriptionID(subscriptionID string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertMembershipByUser inserts or updates the single membership row for the
// user. The unique index on user_id makes concurrent upserts converge on one
// row regardless of webhook delivery order.
func (r *gormRepository) UpsertMembershipByUser(m *models.Membership) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"type",
			"current_period_end",
			"stripe_subscription_id",
			"stripe_customer_id",
			"updated_at",
		}),
	}).Create(m).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ?", m.UserID).First(m).Error
}

func (r *gormRepository) UpdateMembershipBySubscriptionID(subscriptionID string, updates map[string]interface{}) (int64, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now()
	tx := r.db.Model(&models.Membership{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Updates(updates)
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) FindPurchaseBySessionID(sessionID string) (*models.Purchase, error) {
	var p models.Purchase
	err := r.db.Where("stripe_session_id = ?", sessionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePurchaseIfNotExists performs the conditional insert that makes the
// webhook path and the manual verification path race-safe: the unique index
// on stripe_session_id rejects the loser, which observes created=false.
func (r *gormRepository) CreatePurchaseIfNotExists(p *models.Purchase) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_session_id"},
		},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
