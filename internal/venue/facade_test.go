package venue_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/internal/venue/mockvenue"
)

func openOrderFixture(id int64, rawStatus string) types.OpenOrder {
	return types.OpenOrder{
		VenueOrderID: id,
		Symbol:       "XYZ",
		SecType:      "STK",
		Exchange:     "SMART",
		Currency:     "USD",
		Side:         types.SideBuy,
		Quantity:     decimal.NewFromInt(10),
		OrderKind:    types.OrderKindMarket,
		RawStatus:    rawStatus,
		Remaining:    decimal.NewFromInt(10),
	}
}

func executionFixture(id int64, shares int64, price float64) types.ExecutionRecord {
	return types.ExecutionRecord{
		VenueOrderID: id,
		ExecutionID:  "0000e0d5.0001",
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

func marketRequest(qty int64) types.OrderRequest {
	return types.OrderRequest{
		Symbol:   "XYZ",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(qty),
	}
}

func TestNewWireOrderValidation(t *testing.T) {
	qty := decimal.NewFromInt(10)
	price := decimal.NewFromFloat(99.5)

	tests := []struct {
		name    string
		req     types.OrderRequest
		wantErr string
	}{
		{
			name:    "missing symbol",
			req:     types.OrderRequest{Side: types.SideBuy, Quantity: qty},
			wantErr: "symbol is required",
		},
		{
			name:    "bad action",
			req:     types.OrderRequest{Symbol: "XYZ", Side: "HOLD", Quantity: qty},
			wantErr: "action must be BUY or SELL",
		},
		{
			name:    "zero quantity",
			req:     types.OrderRequest{Symbol: "XYZ", Side: types.SideBuy},
			wantErr: "quantity must be positive",
		},
		{
			name:    "limit order without limit price",
			req:     types.OrderRequest{Symbol: "XYZ", Side: types.SideBuy, Quantity: qty, OrderKind: types.OrderKindLimit},
			wantErr: "limit order requires a positive limit price",
		},
		{
			name:    "stop order without stop price",
			req:     types.OrderRequest{Symbol: "XYZ", Side: types.SideSell, Quantity: qty, OrderKind: types.OrderKindStop},
			wantErr: "stop order requires a positive stop price",
		},
		{
			name:    "stop limit without stop price",
			req:     types.OrderRequest{Symbol: "XYZ", Side: types.SideSell, Quantity: qty, OrderKind: types.OrderKindStopLimit, LimitPrice: price},
			wantErr: "stop limit order requires a positive stop price",
		},
		{
			name:    "unsupported kind",
			req:     types.OrderRequest{Symbol: "XYZ", Side: types.SideBuy, Quantity: qty, OrderKind: "TRAIL"},
			wantErr: "unsupported order type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := venue.NewWireOrder(tt.req)
			require.Error(t, err)
			var placement *venue.PlacementError
			require.ErrorAs(t, err, &placement)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewWireOrderDefaults(t *testing.T) {
	order, err := venue.NewWireOrder(marketRequest(10))
	require.NoError(t, err)
	assert.Equal(t, types.OrderKindMarket, order.OrderType)
	assert.Equal(t, "GTC", order.TIF)
	assert.False(t, order.OutsideRTH)

	contract := venue.NewContract(marketRequest(10))
	assert.Equal(t, types.DefaultSecType, contract.SecType)
	assert.Equal(t, types.DefaultExchange, contract.Exchange)
	assert.Equal(t, types.DefaultCurrency, contract.Currency)
}

func TestPlaceOrderNotConnected(t *testing.T) {
	mock := mockvenue.New()
	session := venue.NewSessionWithDialer("127.0.0.1", 4002, 9, mock)

	_, err := venue.PlaceOrder(session, marketRequest(10))
	assert.ErrorIs(t, err, venue.ErrNotConnected)
}

// Place a market order for 10 units; the venue handshake yields id 501
// and the order fills asynchronously at the reference price.
func TestPlaceOrderAndAwaitInitialFill(t *testing.T) {
	mock := mockvenue.New()
	mock.FirstOrderID = 501
	mock.RefPrice = decimal.NewFromFloat(101.5)

	session := venue.NewSessionWithDialer("127.0.0.1", 4002, 9, mock)
	require.NoError(t, session.Connect())
	defer session.Disconnect()

	orderID, err := venue.PlaceOrder(session, marketRequest(10))
	require.NoError(t, err)
	assert.Equal(t, int64(501), orderID)

	event, ok, err := venue.AwaitInitialFill(session, orderID, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.StatusFilled, venue.MapStatus(event.RawStatus))
	assert.True(t, decimal.NewFromInt(10).Equal(event.Filled))
	assert.True(t, decimal.NewFromFloat(101.5).Equal(event.AvgFillPrice))
}

func TestPlaceOrderDuplicateIDRejected(t *testing.T) {
	mock := mockvenue.New()
	mock.FirstOrderID = 600
	mock.SeedOpenOrder(openOrderFixture(600, "Submitted"))

	session := venue.NewSessionWithDialer("127.0.0.1", 4002, 9, mock)
	require.NoError(t, session.Connect())
	defer session.Disconnect()

	// The handshake id collides with the seeded resting order, so the
	// venue reports a duplicate-id error for this placement.
	orderID, err := venue.PlaceOrder(session, marketRequest(10))
	require.NoError(t, err)
	assert.Equal(t, int64(600), orderID)

	// The venue answers with an error frame and no status event; the
	// wait surfaces it without tearing the session down.
	time.Sleep(100 * time.Millisecond)
	_, _, err = venue.AwaitInitialFill(session, orderID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, venue.ErrDuplicateOrderID)
	assert.True(t, session.IsConnected(), "duplicate id error is per-order, not fatal")
	_, ok := session.Feed().LastKnown(orderID)
	assert.False(t, ok, "duplicate placement must not be acknowledged")
}

func TestCancelOrder(t *testing.T) {
	mock := mockvenue.New()
	// Delay execution so the cancel lands while the order is resting.
	mock.MinLatency = 500 * time.Millisecond

	session := venue.NewSessionWithDialer("127.0.0.1", 4002, 9, mock)
	require.NoError(t, session.Connect())
	defer session.Disconnect()

	orderID, err := venue.PlaceOrder(session, marketRequest(10))
	require.NoError(t, err)

	require.NoError(t, venue.CancelOrder(session, orderID))

	assert.Eventually(t, func() bool {
		event, ok := session.Feed().LastKnown(orderID)
		return ok && venue.MapStatus(event.RawStatus) == types.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)
}
