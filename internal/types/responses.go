package types

import "time"

// ConnectionStatusResponse reports the gateway configuration in use and
// the outcome of a live connectivity check.
type ConnectionStatusResponse struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	ClientID  int    `json:"client_id"`
}

// ReconcileSummary reports the outcome of a reconciliation pass.
type ReconcileSummary struct {
	OpenOrdersSeen int       `json:"open_orders_seen"`
	ExecutionsSeen int       `json:"executions_seen"`
	Matched        int       `json:"matched"`
	Created        int       `json:"created"`
	Updated        int       `json:"updated"`
	Partial        bool      `json:"partial"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// OrderListResponse is the paginated order listing.
type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}
