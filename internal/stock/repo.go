package stock

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
)

// Repository is the authoritative inventory store. Every call round-trips to
// the database; nothing is cached in process.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id int64) (*models.Item, error)
	GetMany(ctx context.Context, ids []int64) ([]models.Item, error)
	ListAll(ctx context.Context) ([]models.Item, error)
	Decrement(ctx context.Context, itemID int64, qty int) (DecrementResult, error)
	Save(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// DecrementResult reports what a single-row decrement did. Shortfall is the
// number of units requested beyond what was in stock; stock is clamped at 0.
type DecrementResult struct {
	ItemID    int64
	Requested int
	Before    int
	After     int
	Shortfall int
	Missing   bool
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a stock repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Get returns nil when the item does not exist.
func (r *repository) Get(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// GetMany returns only the ids that exist; callers detect gaps.
func (r *repository) GetMany(ctx context.Context, ids []int64) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}
	var items []models.Item
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListAll(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error
	return items, err
}

// Decrement removes qty units from one row, never below zero. Run inside a
// transaction so the row lock covers the read and the write.
func (r *repository) Decrement(ctx context.Context, itemID int64, qty int) (DecrementResult, error) {
	result := DecrementResult{ItemID: itemID, Requested: qty}
	if qty <= 0 {
		return result, errors.New("decrement quantity must be positive")
	}

	var item models.Item
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", itemID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Missing = true
			result.Shortfall = qty
			return result, nil
		}
		return result, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ?", itemID).
		Update("quantity", gorm.Expr("CASE WHEN quantity >= ? THEN quantity - ? ELSE 0 END", qty, qty)).Error
	if err != nil {
		return result, err
	}

	result.Before = item.Quantity
	if item.Quantity >= qty {
		result.After = item.Quantity - qty
	} else {
		result.Shortfall = qty - item.Quantity
	}
	return result, nil
}

// Save inserts the item when ID is zero and overwrites it otherwise.
func (r *repository) Save(ctx context.Context, item *models.Item) error {
	if item.ID == 0 {
		return r.db.WithContext(ctx).Create(item).Error
	}
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) Delete(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Item{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
