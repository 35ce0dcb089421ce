package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Canonical order statuses, independent of the venue's own vocabulary.
const (
	StatusPending   = "PENDING"
	StatusSubmitted = "SUBMITTED"
	StatusAccepted  = "ACCEPTED"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order kinds, in the venue's wire vocabulary.
const (
	OrderKindMarket    = "MKT"
	OrderKindLimit     = "LMT"
	OrderKindStop      = "STP"
	OrderKindStopLimit = "STP_LMT"
)

// Defaults applied when the caller or the venue omits contract details.
const (
	DefaultSecType  = "STK"
	DefaultExchange = "SMART"
	DefaultCurrency = "USD"
)

// IsTerminal reports whether a canonical status admits no further
// mutation by the merge policy.
func IsTerminal(status string) bool {
	return status == StatusCancelled || status == StatusRejected
}

// OrderRequest is the validated inbound request to place an order.
// Immutable once submitted.
type OrderRequest struct {
	Symbol     string          `json:"symbol"`
	SecType    string          `json:"sec_type"`
	Exchange   string          `json:"exchange"`
	Currency   string          `json:"currency"`
	Side       string          `json:"action"` // BUY or SELL
	Quantity   decimal.Decimal `json:"quantity"`
	OrderKind  string          `json:"order_type"` // MKT, LMT, STP, STP_LMT
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

// Order is the ledger record for an order placed at the venue.
// A record exists from the moment a venue order id was allocated and the
// placement command was transmitted; it is never deleted once it carries
// a venue order id.
type Order struct {
	gorm.Model    `json:"-"`
	LocalID       string          `gorm:"uniqueIndex" json:"local_id"`
	VenueOrderID  int64           `gorm:"uniqueIndex" json:"venue_order_id"`
	Symbol        string          `json:"symbol"`
	SecType       string          `json:"sec_type"`
	Exchange      string          `json:"exchange"`
	Currency      string          `json:"currency"`
	Side          string          `json:"action"`
	Quantity      decimal.Decimal `gorm:"type:decimal(15,5)" json:"quantity"`
	OrderKind     string          `json:"order_type"`
	LimitPrice    decimal.Decimal `gorm:"type:decimal(15,5)" json:"limit_price"`
	StopPrice     decimal.Decimal `gorm:"type:decimal(15,5)" json:"stop_price"`
	Status        string          `json:"status"`
	FilledQty     decimal.Decimal `gorm:"type:decimal(15,5)" json:"filled_quantity"`
	AvgFillPrice  decimal.Decimal `gorm:"type:decimal(15,5)" json:"avg_fill_price"`
	WebhookID     string          `json:"webhook_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StatusEvent is a single order-status update received from the venue.
// The latest event per venue order id is retained as the current snapshot.
type StatusEvent struct {
	VenueOrderID int64           `json:"order_id"`
	RawStatus    string          `json:"status"`
	Filled       decimal.Decimal `json:"filled"`
	Remaining    decimal.Decimal `json:"remaining"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
}

// ExecutionRecord is a trade execution reported by the venue. Used by
// reconciliation to backfill orders that completed and aged out of the
// venue's open-order set.
type ExecutionRecord struct {
	VenueOrderID int64           `json:"order_id"`
	ExecutionID  string          `json:"exec_id"`
	Time         string          `json:"time"`
	Symbol       string          `json:"symbol"`
	SecType      string          `json:"sec_type"`
	Exchange     string          `json:"exchange"`
	Side         string          `json:"side"` // BOT or SLD
	Shares       decimal.Decimal `json:"shares"`
	Price        decimal.Decimal `json:"price"`
	Account      string          `json:"account"`
}

// OpenOrder is an order the venue currently reports as open, including
// its contract metadata and latest state.
type OpenOrder struct {
	VenueOrderID int64           `json:"order_id"`
	Symbol       string          `json:"symbol"`
	SecType      string          `json:"sec_type"`
	Exchange     string          `json:"exchange"`
	Currency     string          `json:"currency"`
	Side         string          `json:"action"`
	Quantity     decimal.Decimal `json:"quantity"`
	OrderKind    string          `json:"order_type"`
	RawStatus    string          `json:"status"`
	Filled       decimal.Decimal `json:"filled"`
	Remaining    decimal.Decimal `json:"remaining"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
}
