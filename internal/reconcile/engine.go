package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/interbroker/bridge-api/internal/orders"
	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
)

// settleWindow is the fixed wait that approximates completeness of one
// asynchronous snapshot request.
const settleWindow = 3 * time.Second

// VenueReader is the slice of the session the engine needs.
type VenueReader interface {
	OpenOrders(settle time.Duration) ([]types.OpenOrder, error)
	Executions(settle time.Duration) ([]types.ExecutionRecord, error)
	IsConnected() bool
}

// Engine resynchronizes the local ledger with venue truth. It fetches
// the venue's open-order set and execution reports, then applies a
// deterministic two-pass merge: open orders overwrite ledger state
// (the feed is the venue's canonical view), and executions not covered
// by an open order backfill completed orders. The two snapshots are
// fetched by independent, separately-timed requests, so a rare
// execution may be processed before its order leaves the open set;
// the merge is idempotent, so a later pass converges.
type Engine struct {
	db     *orders.Database
	reader VenueReader
	settle time.Duration
}

// NewEngine creates a reconciliation engine over the given ledger and
// venue session.
func NewEngine(db *orders.Database, reader VenueReader) *Engine {
	return &Engine{
		db:     db,
		reader: reader,
		settle: settleWindow,
	}
}

// Run executes one full reconciliation pass. Any transport failure
// aborts the pass; the returned summary then reports partial progress
// rather than pretending a consistent merge happened.
func (e *Engine) Run() (*types.ReconcileSummary, error) {
	logger := log.With().Str("component", "reconcile").Logger()
	summary := &types.ReconcileSummary{StartedAt: time.Now()}

	if !e.reader.IsConnected() {
		summary.Partial = true
		summary.FinishedAt = time.Now()
		return summary, venue.ErrNotConnected
	}

	logger.Info().Msg("requesting open orders from venue")
	openOrders, err := e.reader.OpenOrders(e.settle)
	if err != nil {
		summary.Partial = true
		summary.FinishedAt = time.Now()
		logger.Error().Err(err).Msg("open orders request failed, aborting pass")
		return summary, err
	}
	summary.OpenOrdersSeen = len(openOrders)

	logger.Info().Msg("requesting executions from venue")
	executions, err := e.reader.Executions(e.settle)
	if err != nil {
		summary.Partial = true
		summary.FinishedAt = time.Now()
		logger.Error().Err(err).Msg("executions request failed, aborting pass")
		return summary, err
	}
	summary.ExecutionsSeen = len(executions)

	// Pass 1: the open-order set is authoritative for every order it
	// still reports.
	covered := make(map[int64]bool, len(openOrders))
	for _, open := range openOrders {
		covered[open.VenueOrderID] = true
		if err := e.mergeOpenOrder(open, summary); err != nil {
			summary.Partial = true
			summary.FinishedAt = time.Now()
			return summary, err
		}
	}

	// Pass 2: executions whose order is no longer open imply the order
	// completed and aged out of the open set.
	for _, exec := range executions {
		if covered[exec.VenueOrderID] {
			continue
		}
		if err := e.mergeExecution(exec, summary); err != nil {
			summary.Partial = true
			summary.FinishedAt = time.Now()
			return summary, err
		}
	}

	summary.FinishedAt = time.Now()
	logger.Info().
		Int("open_orders_seen", summary.OpenOrdersSeen).
		Int("executions_seen", summary.ExecutionsSeen).
		Int("matched", summary.Matched).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Msg("reconciliation pass complete")
	return summary, nil
}

func (e *Engine) mergeOpenOrder(open types.OpenOrder, summary *types.ReconcileSummary) error {
	logger := log.With().
		Str("component", "reconcile").
		Int64("venue_order_id", open.VenueOrderID).
		Logger()

	record, err := e.db.GetByVenueID(open.VenueOrderID)
	if err != nil {
		return fmt.Errorf("ledger lookup failed: %w", err)
	}

	if record == nil {
		record = &types.Order{
			LocalID:      uuid.New().String(),
			VenueOrderID: open.VenueOrderID,
			Symbol:       open.Symbol,
			SecType:      defaultString(open.SecType, types.DefaultSecType),
			Exchange:     defaultString(open.Exchange, types.DefaultExchange),
			Currency:     defaultString(open.Currency, types.DefaultCurrency),
			Side:         open.Side,
			Quantity:     open.Quantity,
			OrderKind:    defaultString(open.OrderKind, types.OrderKindMarket),
			Status:       venue.MapStatus(open.RawStatus),
			FilledQty:    open.Filled,
			AvgFillPrice: open.AvgFillPrice,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := e.db.Create(record); err != nil {
			return fmt.Errorf("ledger create failed: %w", err)
		}
		summary.Created++
		logger.Info().Str("status", record.Status).Msg("created ledger record for venue open order")
		return nil
	}

	summary.Matched++
	if types.IsTerminal(record.Status) {
		// Terminal records admit no further mutation.
		return nil
	}

	mapped := venue.MapStatus(open.RawStatus)
	changed := false
	if record.Status != mapped {
		logger.Info().Str("from", record.Status).Str("to", mapped).Msg("order status changed")
		record.Status = mapped
		changed = true
	}
	if !record.FilledQty.Equal(open.Filled) {
		record.FilledQty = open.Filled
		changed = true
	}
	if open.AvgFillPrice.IsPositive() && !record.AvgFillPrice.Equal(open.AvgFillPrice) {
		record.AvgFillPrice = open.AvgFillPrice
		changed = true
	}

	if changed {
		record.UpdatedAt = time.Now()
		if err := e.db.Upsert(record); err != nil {
			return fmt.Errorf("ledger update failed: %w", err)
		}
		summary.Updated++
	}
	return nil
}

func (e *Engine) mergeExecution(exec types.ExecutionRecord, summary *types.ReconcileSummary) error {
	logger := log.With().
		Str("component", "reconcile").
		Int64("venue_order_id", exec.VenueOrderID).
		Str("exec_id", exec.ExecutionID).
		Logger()

	record, err := e.db.GetByVenueID(exec.VenueOrderID)
	if err != nil {
		return fmt.Errorf("ledger lookup failed: %w", err)
	}

	if record == nil {
		// The order predates this ledger; synthesize a filled record
		// from what the execution carries, defaulting the metadata the
		// execution feed lacks.
		record = &types.Order{
			LocalID:      uuid.New().String(),
			VenueOrderID: exec.VenueOrderID,
			Symbol:       exec.Symbol,
			SecType:      defaultString(exec.SecType, types.DefaultSecType),
			Exchange:     defaultString(exec.Exchange, types.DefaultExchange),
			Currency:     types.DefaultCurrency,
			Side:         execSide(exec.Side),
			Quantity:     exec.Shares,
			OrderKind:    types.OrderKindMarket,
			Status:       types.StatusFilled,
			FilledQty:    exec.Shares,
			AvgFillPrice: exec.Price,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := e.db.Create(record); err != nil {
			return fmt.Errorf("ledger create failed: %w", err)
		}
		summary.Created++
		logger.Info().Str("shares", exec.Shares.String()).Msg("synthesized filled ledger record from execution")
		return nil
	}

	if types.IsTerminal(record.Status) {
		return nil
	}

	// An execution with no open order implies the order is done. Fills
	// only ever move up.
	if record.FilledQty.LessThan(exec.Shares) {
		record.FilledQty = exec.Shares
		record.AvgFillPrice = exec.Price
		record.Status = types.StatusFilled
		record.UpdatedAt = time.Now()
		if err := e.db.Upsert(record); err != nil {
			return fmt.Errorf("ledger update failed: %w", err)
		}
		summary.Updated++
		logger.Info().Str("filled", exec.Shares.String()).Msg("backfilled order from execution")
	}
	return nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// execSide maps the execution feed's buy/sell marker to an order side.
func execSide(side string) string {
	if side == "SLD" {
		return types.SideSell
	}
	return types.SideBuy
}
