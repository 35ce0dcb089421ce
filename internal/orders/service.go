package orders

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
)

// Service places orders through a venue session and keeps the ledger in
// step with the status updates that come back.
type Service struct {
	db      *Database
	session *venue.Session
}

// NewService creates an order service bound to a venue session.
func NewService(gormDB *gorm.DB, session *venue.Session) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		session: session,
	}
}

// GetDB exposes the ledger database for collaborating services.
func (s *Service) GetDB() *Database {
	return s.db
}

// ApplyStatus merges a status event into a ledger record under the
// canonical merge policy: terminal records are never mutated further,
// fills never decrease, and zero-valued event fields do not clobber
// known values.
func ApplyStatus(order *types.Order, event types.StatusEvent) bool {
	if types.IsTerminal(order.Status) {
		return false
	}

	changed := false
	mapped := venue.MapStatus(event.RawStatus)
	if order.Status != mapped {
		order.Status = mapped
		changed = true
	}
	if event.Filled.IsPositive() && event.Filled.GreaterThan(order.FilledQty) {
		order.FilledQty = event.Filled
		changed = true
	}
	if event.AvgFillPrice.IsPositive() && !event.AvgFillPrice.Equal(order.AvgFillPrice) {
		order.AvgFillPrice = event.AvgFillPrice
		changed = true
	}
	if changed {
		order.UpdatedAt = time.Now()
	}
	return changed
}

// PlaceOrder transmits the request to the venue, records the resulting
// order in the ledger, then waits a bounded time for the first fill
// before returning the current snapshot. The record exists from the
// moment the placement command was sent, whatever the venue replies.
func (s *Service) PlaceOrder(req types.OrderRequest, webhookID string) (*types.Order, error) {
	orderID, err := venue.PlaceOrder(s.session, req)
	if err != nil {
		return nil, err
	}

	logger := log.With().
		Int64("venue_order_id", orderID).
		Str("symbol", req.Symbol).
		Str("service", "orders").
		Logger()

	contract := venue.NewContract(req)
	order := &types.Order{
		LocalID:      uuid.New().String(),
		VenueOrderID: orderID,
		Symbol:       contract.Symbol,
		SecType:      contract.SecType,
		Exchange:     contract.Exchange,
		Currency:     contract.Currency,
		Side:         req.Side,
		Quantity:     req.Quantity,
		OrderKind:    req.OrderKind,
		LimitPrice:   req.LimitPrice,
		StopPrice:    req.StopPrice,
		Status:       types.StatusSubmitted,
		WebhookID:    webhookID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if order.OrderKind == "" {
		order.OrderKind = types.OrderKindMarket
	}
	if err := s.db.Create(order); err != nil {
		logger.Error().Err(err).Msg("failed to persist order record")
		return nil, err
	}

	logger.Info().Msg("order placed, waiting for initial status")

	event, ok, err := venue.AwaitInitialFill(s.session, orderID, req.Quantity)
	if err != nil {
		if errors.Is(err, venue.ErrDuplicateOrderID) {
			// The venue refused the id, so nothing was placed. The
			// record stays as a rejected placement attempt.
			order.Status = types.StatusRejected
			order.UpdatedAt = time.Now()
			if upErr := s.db.Upsert(order); upErr != nil {
				logger.Error().Err(upErr).Msg("failed to update order record")
			}
			logger.Error().Err(err).Msg("venue rejected the order id")
			return order, err
		}
		// Connection dropped while waiting; the record stands and
		// reconciliation picks the order up later.
		logger.Warn().Err(err).Msg("connection lost while awaiting initial fill")
		return order, nil
	}
	if !ok {
		logger.Warn().Msg("no status update received for order")
		return order, nil
	}

	if ApplyStatus(order, event) {
		if err := s.db.Upsert(order); err != nil {
			logger.Error().Err(err).Msg("failed to update order record")
			return nil, err
		}
	}
	logger.Info().
		Str("status", order.Status).
		Str("filled_quantity", order.FilledQty.String()).
		Msg("order state recorded")

	return order, nil
}

// CancelOrder asks the venue to cancel a working order. The resulting
// Cancelled status flows back through the feed and reconciliation.
func (s *Service) CancelOrder(venueOrderID int64) error {
	order, err := s.db.GetByVenueID(venueOrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return gorm.ErrRecordNotFound
	}
	return venue.CancelOrder(s.session, venueOrderID)
}

// GetOrder fetches an order from the ledger. With refresh set and a
// live session, the venue's last-known state for the order is merged
// and persisted first.
func (s *Service) GetOrder(venueOrderID int64, refresh bool) (*types.Order, error) {
	order, err := s.db.GetByVenueID(venueOrderID)
	if err != nil || order == nil {
		return order, err
	}

	if refresh && s.session.IsConnected() {
		if event, ok := s.session.Feed().LastKnown(venueOrderID); ok {
			if ApplyStatus(order, event) {
				if err := s.db.Upsert(order); err != nil {
					return nil, err
				}
			}
		}
	}

	return order, nil
}

// GetOrderByLocalID fetches an order by the local record id assigned at
// placement. Returns nil without error when no record exists.
func (s *Service) GetOrderByLocalID(localID string) (*types.Order, error) {
	return s.db.GetByLocalID(localID)
}

// ListOrders returns one page of the ledger.
func (s *Service) ListOrders(page, limit int) ([]types.Order, int64, error) {
	return s.db.List(page, limit)
}
