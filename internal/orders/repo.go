package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	"github.com/angelmondragon/kiggyshop-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their children.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByCheckoutSessionID(ctx context.Context, checkoutSessionID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter enums.OrderFilter, params pagination.Params) ([]models.Order, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	MarkShipped(ctx context.Context, id uuid.UUID, trackingNumber string, at time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order with its line items and address in one statement
// group. Call inside a transaction.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if order.Address != nil {
		order.Address.OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByCheckoutSessionID(ctx context.Context, checkoutSessionID uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "checkout_session_id = ?", checkoutSessionID)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id ASC") }).
		Preload("Address").
		Where(query, arg).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// List returns newest orders first. It fetches one row beyond the page limit
// so callers can detect a following page.
func (r *repository) List(ctx context.Context, filter enums.OrderFilter, params pagination.Params) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id ASC") }).
		Preload("Address")

	switch filter {
	case enums.OrderFilterShipped:
		query = query.Where("shipped = ?", true)
	case enums.OrderFilterUnshipped:
		query = query.Where("shipped = ?", false)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// MarkShipped sets the tracking number on an unshipped order and returns the
// number of rows updated; zero means the order is missing or already shipped.
func (r *repository) MarkShipped(ctx context.Context, id uuid.UUID, trackingNumber string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND shipped = ?", id, false).
		Updates(map[string]any{
			"shipped":         true,
			"tracking_number": trackingNumber,
			"shipped_at":      at.UTC(),
		})
	return res.RowsAffected, res.Error
}

// Delete removes the order with its line items and address. Call inside a
// transaction; children are deleted explicitly so drivers without enforced
// cascades behave the same.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&models.OrderLineItem{}).Error; err != nil {
		return false, err
	}
	if err := db.Where("order_id = ?", id).Delete(&models.OrderAddress{}).Error; err != nil {
		return false, err
	}
	res := db.Where("id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
