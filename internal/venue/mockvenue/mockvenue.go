// Package mockvenue is an in-process venue gateway implementing the
// wire contract of the production transport. It simulates execution
// latency, liquidity-limited fills and rejections, and serves the
// snapshot requests the reconciliation engine relies on. Used by tests
// and local development.
package mockvenue

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/venue"
)

type restingOrder struct {
	contract venue.Contract
	order    venue.WireOrder
	status   string
	filled   decimal.Decimal
	avgPrice decimal.Decimal
}

// Venue is a simulated venue gateway.
type Venue struct {
	// FirstOrderID seeds the id handshake.
	FirstOrderID int64
	// MinLatency and MaxLatency bound the simulated execution delay.
	MinLatency time.Duration
	MaxLatency time.Duration
	// LiquidityFactor in (0,1]: probability-weighted share of the
	// requested quantity that fills.
	LiquidityFactor float64
	// SuccessRate in [0,1]: probability an order executes at all.
	SuccessRate float64
	// RefPrice is the execution price for market orders.
	RefPrice decimal.Decimal
	// Account reported on execution records.
	Account string

	mu     sync.Mutex
	orders map[int64]*restingOrder
	execs  []types.ExecutionRecord
	seq    int64
}

// New returns a venue with full liquidity, no failures and no latency.
// Tests tighten or loosen the knobs as needed.
func New() *Venue {
	return &Venue{
		FirstOrderID:    1,
		LiquidityFactor: 1.0,
		SuccessRate:     1.0,
		RefPrice:        decimal.NewFromFloat(100.0),
		Account:         "DU000001",
		orders:          make(map[int64]*restingOrder),
	}
}

// Dial implements venue.Dialer with an in-process connection.
func (v *Venue) Dial(string, int) (venue.Conn, error) {
	return &conn{
		venue:  v,
		inbox:  make(chan *venue.Frame, 64),
		closed: make(chan struct{}),
	}, nil
}

// SeedOpenOrder installs an order the venue will report as open,
// without it having been placed through a session.
func (v *Venue) SeedOpenOrder(o types.OpenOrder) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders[o.VenueOrderID] = &restingOrder{
		contract: venue.Contract{Symbol: o.Symbol, SecType: o.SecType, Exchange: o.Exchange, Currency: o.Currency},
		order:    venue.WireOrder{Action: o.Side, TotalQuantity: o.Quantity, OrderType: o.OrderKind},
		status:   o.RawStatus,
		filled:   o.Filled,
		avgPrice: o.AvgFillPrice,
	}
}

// SeedExecution installs an execution report with no corresponding open
// order, as happens when a filled order ages out of the open set.
func (v *Venue) SeedExecution(e types.ExecutionRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.execs = append(v.execs, e)
}

type conn struct {
	venue     *Venue
	inbox     chan *venue.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *conn) ReadFrame() (*venue.Frame, error) {
	select {
	case frame := <-c.inbox:
		return frame, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *conn) WriteFrame(frame *venue.Frame) error {
	select {
	case <-c.closed:
		return io.EOF
	default:
	}
	c.venue.handle(c, frame)
	return nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *conn) deliver(frame *venue.Frame) {
	select {
	case c.inbox <- frame:
	case <-c.closed:
	}
}

func (v *Venue) handle(c *conn, frame *venue.Frame) {
	switch frame.Type {
	case venue.FrameStartAPI:
		v.mu.Lock()
		if v.seq == 0 {
			v.seq = v.FirstOrderID
		}
		next := v.seq
		v.mu.Unlock()
		c.deliver(&venue.Frame{Type: venue.FrameNextValidID, OrderID: next})

	case venue.FramePlaceOrder:
		v.placeOrder(c, frame)

	case venue.FrameCancelOrder:
		v.cancelOrder(c, frame.OrderID)

	case venue.FrameReqOpenOrders:
		v.mu.Lock()
		for id, o := range v.orders {
			if o.status == "Filled" || o.status == "Cancelled" || o.status == "Inactive" {
				continue
			}
			c.deliver(&venue.Frame{Type: venue.FrameOpenOrder, ReqID: frame.ReqID, Open: &types.OpenOrder{
				VenueOrderID: id,
				Symbol:       o.contract.Symbol,
				SecType:      o.contract.SecType,
				Exchange:     o.contract.Exchange,
				Currency:     o.contract.Currency,
				Side:         o.order.Action,
				Quantity:     o.order.TotalQuantity,
				OrderKind:    o.order.OrderType,
				RawStatus:    o.status,
				Filled:       o.filled,
				Remaining:    o.order.TotalQuantity.Sub(o.filled),
				AvgFillPrice: o.avgPrice,
			}})
		}
		v.mu.Unlock()
		c.deliver(&venue.Frame{Type: venue.FrameOpenOrderEnd, ReqID: frame.ReqID})

	case venue.FrameReqExecutions:
		v.mu.Lock()
		execs := make([]types.ExecutionRecord, len(v.execs))
		copy(execs, v.execs)
		v.mu.Unlock()
		for i := range execs {
			exec := execs[i]
			c.deliver(&venue.Frame{Type: venue.FrameExecDetails, ReqID: frame.ReqID, Execution: &exec})
		}
		c.deliver(&venue.Frame{Type: venue.FrameExecDetailsEnd, ReqID: frame.ReqID})

	case venue.FrameReqAccountUpdates:
		c.deliver(&venue.Frame{Type: venue.FrameAccountValue, Account: v.Account, Key: "NetLiquidation", Value: "100000.00", Currency: "USD"})
		c.deliver(&venue.Frame{Type: venue.FrameAccountValue, Account: v.Account, Key: "BuyingPower", Value: "400000.00", Currency: "USD"})
	}
}

func (v *Venue) placeOrder(c *conn, frame *venue.Frame) {
	if frame.Contract == nil || frame.Order == nil {
		return
	}

	v.mu.Lock()
	if _, exists := v.orders[frame.OrderID]; exists {
		v.mu.Unlock()
		c.deliver(&venue.Frame{
			Type:    venue.FrameError,
			Code:    venue.CodeDuplicateOrderID,
			OrderID: frame.OrderID,
			Message: "Duplicate order id",
		})
		return
	}
	v.orders[frame.OrderID] = &restingOrder{
		contract: *frame.Contract,
		order:    *frame.Order,
		status:   "Submitted",
	}
	if frame.OrderID >= v.seq {
		v.seq = frame.OrderID + 1
	}
	v.mu.Unlock()

	c.deliver(&venue.Frame{Type: venue.FrameOrderStatus, Status: &types.StatusEvent{
		VenueOrderID: frame.OrderID,
		RawStatus:    "Submitted",
		Remaining:    frame.Order.TotalQuantity,
	}})

	go v.execute(c, frame.OrderID)
}

// execute simulates the asynchronous fill after a latency delay.
func (v *Venue) execute(c *conn, orderID int64) {
	if v.MaxLatency > v.MinLatency {
		delay := v.MinLatency + time.Duration(rand.Int63n(int64(v.MaxLatency-v.MinLatency)))
		time.Sleep(delay)
	} else if v.MinLatency > 0 {
		time.Sleep(v.MinLatency)
	}

	v.mu.Lock()
	o, ok := v.orders[orderID]
	if !ok || o.status != "Submitted" {
		v.mu.Unlock()
		return
	}

	if rand.Float64() > v.SuccessRate {
		o.status = "Inactive"
		v.mu.Unlock()
		log.Debug().Int64("order_id", orderID).Msg("mock venue rejected order")
		c.deliver(&venue.Frame{Type: venue.FrameOrderStatus, Status: &types.StatusEvent{
			VenueOrderID: orderID,
			RawStatus:    "Inactive",
			Remaining:    o.order.TotalQuantity,
		}})
		return
	}

	qty := o.order.TotalQuantity
	if rand.Float64() > v.LiquidityFactor {
		qty = qty.Mul(decimal.NewFromFloat(v.LiquidityFactor)).Round(5)
	}
	price := v.RefPrice
	if o.order.OrderType == types.OrderKindLimit {
		price = o.order.LmtPrice
	}

	o.filled = qty
	o.avgPrice = price
	fullyFilled := qty.GreaterThanOrEqual(o.order.TotalQuantity)
	if fullyFilled {
		o.status = "Filled"
	}
	side := "BOT"
	if o.order.Action == types.SideSell {
		side = "SLD"
	}
	exec := types.ExecutionRecord{
		VenueOrderID: orderID,
		ExecutionID:  randomExecID(),
		Time:         time.Now().UTC().Format("20060102-15:04:05"),
		Symbol:       o.contract.Symbol,
		SecType:      o.contract.SecType,
		Exchange:     o.contract.Exchange,
		Side:         side,
		Shares:       qty,
		Price:        price,
		Account:      v.Account,
	}
	v.execs = append(v.execs, exec)
	status := o.status
	remaining := o.order.TotalQuantity.Sub(qty)
	v.mu.Unlock()

	c.deliver(&venue.Frame{Type: venue.FrameExecDetails, Execution: &exec})
	c.deliver(&venue.Frame{Type: venue.FrameOrderStatus, Status: &types.StatusEvent{
		VenueOrderID: orderID,
		RawStatus:    status,
		Filled:       qty,
		Remaining:    remaining,
		AvgFillPrice: price,
	}})
}

func (v *Venue) cancelOrder(c *conn, orderID int64) {
	v.mu.Lock()
	o, ok := v.orders[orderID]
	if !ok {
		v.mu.Unlock()
		return
	}
	if o.status != "Filled" {
		o.status = "Cancelled"
	}
	filled := o.filled
	avgPrice := o.avgPrice
	v.mu.Unlock()

	c.deliver(&venue.Frame{Type: venue.FrameOrderStatus, Status: &types.StatusEvent{
		VenueOrderID: orderID,
		RawStatus:    "Cancelled",
		Filled:       filled,
		AvgFillPrice: avgPrice,
	}})
}

func randomExecID() string {
	const digits = "0123456789abcdef"
	b := make([]byte, 12)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return "0000e0d5." + string(b)
}
