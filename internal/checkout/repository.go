package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
)

// Repository persists pending checkout sessions and the provider object cache.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	AttachProvider(ctx context.Context, id uuid.UUID, providerSessionID, paymentURL string) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.CheckoutSession, error)
	Claim(ctx context.Context, id, orderID uuid.UUID, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FlagAttention(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	FindPrice(ctx context.Context, itemID, unitAmount int64, currency string) (*models.ProviderPrice, error)
	SavePrice(ctx context.Context, p *models.ProviderPrice) error
	FindShippingRate(ctx context.Context, amount int64, currency string, minDays, maxDays int64) (*models.ProviderShippingRate, error)
	SaveShippingRate(ctx context.Context, r *models.ProviderShippingRate) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	if session.Status == "" {
		session.Status = enums.CheckoutSessionPending
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// AttachProvider records the provider session on a pending row.
func (r *repository) AttachProvider(ctx context.Context, id uuid.UUID, providerSessionID, paymentURL string) error {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, enums.CheckoutSessionPending).
		Updates(map[string]any{
			"provider_session_id": providerSessionID,
			"payment_url":         paymentURL,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.CheckoutSession, error) {
	return r.findOne(ctx, "provider_session_id = ?", providerSessionID)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).Where(query, arg).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Claim moves a session to fulfilled and links the order. It reports false
// when the session was already fulfilled. Expired sessions can still be
// claimed: the provider only reports completion for sessions it charged.
func (r *repository) Claim(ctx context.Context, id, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status <> ?", id, enums.CheckoutSessionFulfilled).
		Updates(map[string]any{
			"status":       enums.CheckoutSessionFulfilled,
			"order_id":     orderID,
			"fulfilled_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, enums.CheckoutSessionPending).
		Updates(map[string]any{
			"status":     enums.CheckoutSessionExpired,
			"expired_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpirePendingBefore expires every pending session whose expiry is before cutoff.
func (r *repository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status = ? AND expires_at < ?", enums.CheckoutSessionPending, cutoff.UTC()).
		Updates(map[string]any{
			"status":     enums.CheckoutSessionExpired,
			"expired_at": cutoff.UTC(),
		})
	return res.RowsAffected, res.Error
}

// FlagAttention marks a session an operator has to resolve by hand. Fulfilled
// sessions are left alone.
func (r *repository) FlagAttention(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status <> ?", id, enums.CheckoutSessionFulfilled).
		Updates(map[string]any{
			"needs_attention":  true,
			"attention_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindPrice(ctx context.Context, itemID, unitAmount int64, currency string) (*models.ProviderPrice, error) {
	var p models.ProviderPrice
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND unit_amount_cents = ? AND currency = ?", itemID, unitAmount, currency).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SavePrice is a no-op when a concurrent checkout cached the same price first.
func (r *repository) SavePrice(ctx context.Context, p *models.ProviderPrice) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
}

func (r *repository) FindShippingRate(ctx context.Context, amount int64, currency string, minDays, maxDays int64) (*models.ProviderShippingRate, error) {
	var rate models.ProviderShippingRate
	err := r.db.WithContext(ctx).
		Where("amount_cents = ? AND currency = ? AND min_business_days = ? AND max_business_days = ?", amount, currency, minDays, maxDays).
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

func (r *repository) SaveShippingRate(ctx context.Context, rate *models.ProviderShippingRate) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rate).Error
}
