package venue

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/interbroker/bridge-api/internal/types"
)

// Bounded-retry shape for the first fill check: fills at the venue are
// typically fast but not synchronous with the acknowledgment, so a
// single check gives up too early and an unbounded wait hangs callers.
const (
	initialFillAttempts = 5
	initialFillTimeout  = 3 * time.Second
)

// NewContract builds the venue-native contract from an order request,
// applying the system defaults for omitted fields.
func NewContract(req types.OrderRequest) *Contract {
	contract := &Contract{
		Symbol:   req.Symbol,
		SecType:  req.SecType,
		Exchange: req.Exchange,
		Currency: req.Currency,
	}
	if contract.SecType == "" {
		contract.SecType = types.DefaultSecType
	}
	if contract.Exchange == "" {
		contract.Exchange = types.DefaultExchange
	}
	if contract.Currency == "" {
		contract.Currency = types.DefaultCurrency
	}
	return contract
}

// NewWireOrder builds the venue-native order payload, validating that
// the prices the order kind requires are present and positive. Orders
// rest good-till-cancelled and only during regular trading hours.
func NewWireOrder(req types.OrderRequest) (*WireOrder, error) {
	if req.Symbol == "" {
		return nil, &PlacementError{Reason: "symbol is required"}
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return nil, &PlacementError{Reason: "action must be BUY or SELL"}
	}
	if !req.Quantity.IsPositive() {
		return nil, &PlacementError{Reason: "quantity must be positive"}
	}

	order := &WireOrder{
		Action:        req.Side,
		TotalQuantity: req.Quantity,
		OrderType:     req.OrderKind,
		TIF:           "GTC",
		OutsideRTH:    false,
	}
	if order.OrderType == "" {
		order.OrderType = types.OrderKindMarket
	}

	switch order.OrderType {
	case types.OrderKindMarket:
	case types.OrderKindLimit:
		if !req.LimitPrice.IsPositive() {
			return nil, &PlacementError{Reason: "limit order requires a positive limit price"}
		}
		order.LmtPrice = req.LimitPrice
	case types.OrderKindStop:
		if !req.StopPrice.IsPositive() {
			return nil, &PlacementError{Reason: "stop order requires a positive stop price"}
		}
		order.AuxPrice = req.StopPrice
	case types.OrderKindStopLimit:
		if !req.LimitPrice.IsPositive() {
			return nil, &PlacementError{Reason: "stop limit order requires a positive limit price"}
		}
		if !req.StopPrice.IsPositive() {
			return nil, &PlacementError{Reason: "stop limit order requires a positive stop price"}
		}
		order.LmtPrice = req.LimitPrice
		order.AuxPrice = req.StopPrice
	default:
		return nil, &PlacementError{Reason: "unsupported order type: " + order.OrderType}
	}

	return order, nil
}

// PlaceOrder allocates a venue order id, transmits the placement command
// and returns the id. Fire-and-forget at the transport level; the
// acknowledgment arrives asynchronously on the session's status feed.
func PlaceOrder(session *Session, req types.OrderRequest) (int64, error) {
	wireOrder, err := NewWireOrder(req)
	if err != nil {
		return 0, err
	}
	contract := NewContract(req)

	if !session.IsConnected() {
		return 0, ErrNotConnected
	}

	orderID, err := session.NextOrderID()
	if err != nil {
		return 0, err
	}

	logger := log.With().
		Int64("order_id", orderID).
		Str("symbol", contract.Symbol).
		Str("action", wireOrder.Action).
		Str("quantity", wireOrder.TotalQuantity.String()).
		Str("order_type", wireOrder.OrderType).
		Logger()
	logger.Info().Msg("placing order")

	frame := &Frame{
		Type:     FramePlaceOrder,
		OrderID:  orderID,
		Contract: contract,
		Order:    wireOrder,
	}
	if err := session.send(frame); err != nil {
		logger.Error().Err(err).Msg("failed to transmit order")
		return 0, err
	}

	return orderID, nil
}

// CancelOrder transmits a cancel request for the given venue order id.
// The resulting Cancelled status arrives asynchronously.
func CancelOrder(session *Session, orderID int64) error {
	if !session.IsConnected() {
		return ErrNotConnected
	}
	log.Info().Int64("order_id", orderID).Msg("cancelling order")
	return session.send(&Frame{Type: FrameCancelOrder, OrderID: orderID})
}

// AwaitInitialFill polls the status feed for the order's first
// meaningful status, stopping early once the order is filled or lands
// in a terminal state. Returns
// the last snapshot observed, which may be none when the venue stayed
// silent through every attempt. A reused order id surfaces as
// ErrDuplicateOrderID.
func AwaitInitialFill(session *Session, orderID int64, quantity decimal.Decimal) (types.StatusEvent, bool, error) {
	logger := log.With().Int64("order_id", orderID).Logger()

	var last types.StatusEvent
	seen := false

	for attempt := 1; attempt <= initialFillAttempts; attempt++ {
		if err := session.placementFailure(orderID); err != nil {
			logger.Error().Err(err).Msg("venue rejected the placement")
			return last, seen, err
		}

		var (
			event types.StatusEvent
			ok    bool
			err   error
		)
		if attempt == 1 {
			event, ok, err = session.Feed().AwaitStatus(orderID, initialFillTimeout)
		} else {
			// Later attempts already saw the current snapshot; wait for
			// a fresh event instead of re-reading the cache.
			event, ok, err = session.Feed().AwaitNext(orderID, initialFillTimeout)
		}
		if err != nil {
			return last, seen, err
		}
		if !ok {
			logger.Debug().Int("attempt", attempt).Msg("no status update yet")
			continue
		}

		last = event
		seen = true
		mapped := MapStatus(event.RawStatus)
		if mapped == types.StatusFilled || event.Filled.GreaterThanOrEqual(quantity) {
			logger.Info().
				Str("status", event.RawStatus).
				Str("filled", event.Filled.String()).
				Str("avg_fill_price", event.AvgFillPrice.String()).
				Msg("order filled")
			return last, true, nil
		}
		if types.IsTerminal(mapped) {
			// Cancelled or rejected; nothing further is coming.
			logger.Warn().Str("status", event.RawStatus).Msg("order reached terminal state before filling")
			return last, true, nil
		}
		logger.Debug().
			Int("attempt", attempt).
			Str("status", event.RawStatus).
			Str("filled", event.Filled.String()).
			Msg("order not filled yet")
	}

	if err := session.placementFailure(orderID); err != nil {
		logger.Error().Err(err).Msg("venue rejected the placement")
		return last, seen, err
	}
	return last, seen, nil
}
