package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mhartwig/shelfmark/app/models"
)

// Store provides DB operations used by the billing service and reconciler.
// Entitlement rows live on the users table; webhook events are logged to
// their own table for deduplication and audit.
type Store interface {
	GetEntitlement(ctx context.Context, userID uint) (*Entitlement, error)
	FindEntitlementByCustomerRef(ctx context.Context, customerRef string) (*Entitlement, error)
	FindEntitlementByEmail(ctx context.Context, email string) (*Entitlement, error)
	FindEntitlementBySubscriptionRef(ctx context.Context, subscriptionRef string) (*Entitlement, error)
	// SaveEntitlement persists the row with a compare-and-set on the version
	// column. Returns ErrConcurrentModification when another writer won.
	SaveEntitlement(ctx context.Context, e *Entitlement) error
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a billing store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func entitlementFromUser(u *models.User) *Entitlement {
	return &Entitlement{
		UserID:            u.ID,
		Email:             u.Email,
		Plan:              Plan(u.Plan),
		ExpiresAt:         u.SubscriptionExpiresAt,
		CustomerRef:       u.StripeCustomerID,
		SubscriptionRef:   u.StripeSubscriptionID,
		CancelAtPeriodEnd: u.CancelAtPeriodEnd,
		LifetimeAccess:    u.LifetimeAccess,
		Version:           u.EntitlementVersion,
	}
}

func (s *gormStore) GetEntitlement(ctx context.Context, userID uint) (*Entitlement, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return entitlementFromUser(&u), nil
}

func (s *gormStore) FindEntitlementByCustomerRef(ctx context.Context, customerRef string) (*Entitlement, error) {
	if customerRef == "" {
		return nil, ErrUserNotFound
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerRef).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return entitlementFromUser(&u), nil
}

func (s *gormStore) FindEntitlementByEmail(ctx context.Context, email string) (*Entitlement, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	// Stored emails keep the casing the user registered with, the parser
	// lowercases the event email. Match case-insensitively.
	var u models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return entitlementFromUser(&u), nil
}

func (s *gormStore) FindEntitlementBySubscriptionRef(ctx context.Context, subscriptionRef string) (*Entitlement, error) {
	if subscriptionRef == "" {
		return nil, ErrUserNotFound
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", subscriptionRef).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return entitlementFromUser(&u), nil
}

// saveEntitlementWithRetry performs a read-modify-write with one internal
// retry when a concurrent writer bumps the version first.
func saveEntitlementWithRetry(ctx context.Context, store Store, userID uint, mutate func(*Entitlement) error) (*Entitlement, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ent, err := store.GetEntitlement(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := mutate(ent); err != nil {
			return nil, err
		}
		if err := store.SaveEntitlement(ctx, ent); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return ent, nil
	}
	return nil, lastErr
}

func (s *gormStore) SaveEntitlement(ctx context.Context, e *Entitlement) error {
	updates := map[string]interface{}{
		"plan":                    string(e.Plan),
		"subscription_expires_at": e.ExpiresAt,
		"stripe_customer_id":      e.CustomerRef,
		"stripe_subscription_id":  e.SubscriptionRef,
		"cancel_at_period_end":    e.CancelAtPeriodEnd,
		"lifetime_access":         e.LifetimeAccess,
		"entitlement_version":     e.Version + 1,
	}

	tx := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND entitlement_version = ?", e.UserID, e.Version).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		// Either the row vanished or another writer bumped the version.
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", e.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrConcurrentModification
	}
	e.Version++
	return nil
}

func (s *gormStore) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
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
	if err := s.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return s.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
