package reconcile_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interbroker/bridge-api/internal/database"
	"github.com/interbroker/bridge-api/internal/orders"
	"github.com/interbroker/bridge-api/internal/reconcile"
	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
)

// fakeReader serves canned snapshots in place of a live session.
type fakeReader struct {
	open      []types.OpenOrder
	execs     []types.ExecutionRecord
	openErr   error
	execErr   error
	connected bool
}

func (r *fakeReader) OpenOrders(time.Duration) ([]types.OpenOrder, error) {
	return r.open, r.openErr
}

func (r *fakeReader) Executions(time.Duration) ([]types.ExecutionRecord, error) {
	return r.execs, r.execErr
}

func (r *fakeReader) IsConnected() bool {
	return r.connected
}

func openTestDB(t *testing.T) *orders.Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	require.NoError(t, err)
	return orders.NewDatabase(db)
}

func openOrder(id int64, rawStatus string, qty int64) types.OpenOrder {
	return types.OpenOrder{
		VenueOrderID: id,
		Symbol:       "XYZ",
		SecType:      "STK",
		Exchange:     "SMART",
		Currency:     "USD",
		Side:         types.SideBuy,
		Quantity:     decimal.NewFromInt(qty),
		OrderKind:    types.OrderKindMarket,
		RawStatus:    rawStatus,
		Remaining:    decimal.NewFromInt(qty),
	}
}

func execution(id int64, shares int64, price float64) types.ExecutionRecord {
	return types.ExecutionRecord{
		VenueOrderID: id,
		ExecutionID:  fmt.Sprintf("0000e0d5.%08x", id),
		Time:         "20250102-14:30:00",
		Symbol:       "XYZ",
		SecType:      "STK",
		Exchange:     "SMART",
		Side:         "BOT",
		Shares:       decimal.NewFromInt(shares),
		Price:        decimal.NewFromFloat(price),
		Account:      "DU000001",
	}
}

func ledgerRecord(id int64, status string, filled int64) *types.Order {
	return &types.Order{
		LocalID:      uuid.New().String(),
		VenueOrderID: id,
		Symbol:       "XYZ",
		SecType:      types.DefaultSecType,
		Exchange:     types.DefaultExchange,
		Currency:     types.DefaultCurrency,
		Side:         types.SideBuy,
		Quantity:     decimal.NewFromInt(10),
		OrderKind:    types.OrderKindMarket,
		Status:       status,
		FilledQty:    decimal.NewFromInt(filled),
	}
}

// An open order unknown to the ledger is created; an execution whose
// order left the open set synthesizes a filled record.
func TestRunCreatesAndBackfills(t *testing.T) {
	ledger := openTestDB(t)
	reader := &fakeReader{
		connected: true,
		open:      []types.OpenOrder{openOrder(900, "PreSubmitted", 10)},
		execs:     []types.ExecutionRecord{execution(901, 5, 20.0)},
	}

	summary, err := reconcile.NewEngine(ledger, reader).Run()
	require.NoError(t, err)
	assert.False(t, summary.Partial)
	assert.Equal(t, 1, summary.OpenOrdersSeen)
	assert.Equal(t, 1, summary.ExecutionsSeen)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.Matched)
	assert.Equal(t, 0, summary.Updated)

	open, err := ledger.GetByVenueID(900)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, types.StatusSubmitted, open.Status)
	assert.Equal(t, "XYZ", open.Symbol)
	assert.NotEmpty(t, open.LocalID)

	filled, err := ledger.GetByVenueID(901)
	require.NoError(t, err)
	require.NotNil(t, filled)
	assert.Equal(t, types.StatusFilled, filled.Status)
	assert.Equal(t, types.SideBuy, filled.Side)
	assert.Equal(t, types.OrderKindMarket, filled.OrderKind)
	assert.Equal(t, types.DefaultCurrency, filled.Currency)
	assert.True(t, decimal.NewFromInt(5).Equal(filled.FilledQty))
	assert.True(t, decimal.NewFromInt(5).Equal(filled.Quantity))
	assert.True(t, decimal.NewFromFloat(20.0).Equal(filled.AvgFillPrice))
}

func TestRunIsIdempotent(t *testing.T) {
	ledger := openTestDB(t)
	reader := &fakeReader{
		connected: true,
		open:      []types.OpenOrder{openOrder(900, "PreSubmitted", 10)},
		execs:     []types.ExecutionRecord{execution(901, 5, 20.0)},
	}
	engine := reconcile.NewEngine(ledger, reader)

	_, err := engine.Run()
	require.NoError(t, err)

	summary, err := engine.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Matched)
}

func TestRunUpdatesMatchedOpenOrder(t *testing.T) {
	ledger := openTestDB(t)
	require.NoError(t, ledger.Create(ledgerRecord(700, types.StatusPending, 0)))

	open := openOrder(700, "Submitted", 10)
	open.Filled = decimal.NewFromInt(3)
	open.AvgFillPrice = decimal.NewFromFloat(99.5)
	reader := &fakeReader{connected: true, open: []types.OpenOrder{open}}

	summary, err := reconcile.NewEngine(ledger, reader).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 0, summary.Created)

	record, err := ledger.GetByVenueID(700)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, record.Status)
	assert.True(t, decimal.NewFromInt(3).Equal(record.FilledQty))
	assert.True(t, decimal.NewFromFloat(99.5).Equal(record.AvgFillPrice))
}

// Cancelled and rejected records admit no further mutation, whatever
// the venue later claims.
func TestRunLeavesTerminalRecordsAlone(t *testing.T) {
	ledger := openTestDB(t)
	require.NoError(t, ledger.Create(ledgerRecord(700, types.StatusCancelled, 0)))

	reader := &fakeReader{
		connected: true,
		open:      []types.OpenOrder{openOrder(700, "Submitted", 10)},
		execs:     []types.ExecutionRecord{execution(700, 10, 50.0)},
	}

	summary, err := reconcile.NewEngine(ledger, reader).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Updated)

	record, err := ledger.GetByVenueID(700)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, record.Status)
	assert.True(t, record.FilledQty.IsZero())
}

// A stale execution snapshot must never walk a fill backwards.
func TestRunExecutionNeverDecreasesFill(t *testing.T) {
	ledger := openTestDB(t)
	require.NoError(t, ledger.Create(ledgerRecord(700, types.StatusSubmitted, 8)))

	reader := &fakeReader{
		connected: true,
		execs:     []types.ExecutionRecord{execution(700, 5, 20.0)},
	}

	summary, err := reconcile.NewEngine(ledger, reader).Run()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)

	record, err := ledger.GetByVenueID(700)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, record.Status)
	assert.True(t, decimal.NewFromInt(8).Equal(record.FilledQty))
}

func TestRunExecutionCompletesKnownOrder(t *testing.T) {
	ledger := openTestDB(t)
	require.NoError(t, ledger.Create(ledgerRecord(700, types.StatusSubmitted, 0)))

	reader := &fakeReader{
		connected: true,
		execs:     []types.ExecutionRecord{execution(700, 10, 42.0)},
	}

	summary, err := reconcile.NewEngine(ledger, reader).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	record, err := ledger.GetByVenueID(700)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, record.Status)
	assert.True(t, decimal.NewFromInt(10).Equal(record.FilledQty))
	assert.True(t, decimal.NewFromFloat(42.0).Equal(record.AvgFillPrice))
}

func TestRunNotConnected(t *testing.T) {
	ledger := openTestDB(t)
	reader := &fakeReader{connected: false}

	summary, err := reconcile.NewEngine(ledger, reader).Run()
	assert.ErrorIs(t, err, venue.ErrNotConnected)
	require.NotNil(t, summary)
	assert.True(t, summary.Partial)
}

func TestRunAbortsOnTransportError(t *testing.T) {
	ledger := openTestDB(t)
	transportErr := errors.New("read failed")

	t.Run("open orders request fails", func(t *testing.T) {
		reader := &fakeReader{connected: true, openErr: transportErr}
		summary, err := reconcile.NewEngine(ledger, reader).Run()
		assert.ErrorIs(t, err, transportErr)
		assert.True(t, summary.Partial)
		assert.Equal(t, 0, summary.OpenOrdersSeen)
	})

	t.Run("executions request fails", func(t *testing.T) {
		reader := &fakeReader{
			connected: true,
			open:      []types.OpenOrder{openOrder(900, "Submitted", 10)},
			execErr:   transportErr,
		}
		summary, err := reconcile.NewEngine(ledger, reader).Run()
		assert.ErrorIs(t, err, transportErr)
		assert.True(t, summary.Partial)
		assert.Equal(t, 1, summary.OpenOrdersSeen)
	})
}
