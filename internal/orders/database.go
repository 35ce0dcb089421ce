package orders

import (
	"errors"

	"gorm.io/gorm"

	"github.com/interbroker/bridge-api/internal/types"
)

// Statuses under which an order is still working at the venue.
var openStatuses = []string{types.StatusPending, types.StatusSubmitted, types.StatusAccepted}

// Database owns the order-ledger queries. The ledger never deletes a
// record that carries a venue order id.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Create(order *types.Order) error {
	return d.db.Create(order).Error
}

// Upsert writes a record back, creating it when new.
func (d *Database) Upsert(order *types.Order) error {
	return d.db.Save(order).Error
}

// GetByVenueID looks an order up by its venue order id. Returns nil
// without error when no record exists.
func (d *Database) GetByVenueID(venueOrderID int64) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("venue_order_id = ?", venueOrderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByLocalID looks an order up by its local record id.
func (d *Database) GetByLocalID(localID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("local_id = ?", localID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListOpen returns all records whose status is not terminal and not yet
// filled.
func (d *Database) ListOpen() ([]types.Order, error) {
	var out []types.Order
	if err := d.db.Where("status IN ?", openStatuses).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one page of the ledger, newest first, with the total
// record count.
func (d *Database) List(page, limit int) ([]types.Order, int64, error) {
	var total int64
	if err := d.db.Model(&types.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []types.Order
	offset := (page - 1) * limit
	if err := d.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
