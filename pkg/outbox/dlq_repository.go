package outbox

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
)

// DLQRepository appends to outbox_dlq. Rows are kept for operators; nothing
// in the service reads them back.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}
