package venue

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/interbroker/bridge-api/internal/types"
)

// Frame types of the venue wire protocol. The protocol is a fixed,
// versioned external contract: JSON frames over a message-framed duplex
// connection.
const (
	FrameStartAPI          = "startApi"
	FrameNextValidID       = "nextValidId"
	FramePlaceOrder        = "placeOrder"
	FrameCancelOrder       = "cancelOrder"
	FrameOrderStatus       = "orderStatus"
	FrameReqOpenOrders     = "reqOpenOrders"
	FrameOpenOrder         = "openOrder"
	FrameOpenOrderEnd      = "openOrderEnd"
	FrameReqExecutions     = "reqExecutions"
	FrameExecDetails       = "execDetails"
	FrameExecDetailsEnd    = "execDetailsEnd"
	FrameReqAccountUpdates = "reqAccountUpdates"
	FrameAccountValue      = "accountValue"
	FrameError             = "error"
	FrameConnectionClosed  = "connectionClosed"
)

// Venue error codes that indicate loss of connectivity. Any of these
// forces the session state to Disconnected.
const (
	CodeConnectRefused   = 502  // gateway not reachable
	CodeConnectivityLost = 1100 // link between gateway and venue dropped
)

// CodeDuplicateOrderID is the venue's per-order error for a reused order
// identifier. Fatal for that placement only, never for the session.
const CodeDuplicateOrderID = 103

// Contract identifies the instrument an order trades.
type Contract struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"sec_type"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// WireOrder is the venue-native order payload.
type WireOrder struct {
	Action        string          `json:"action"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderType     string          `json:"order_type"`
	LmtPrice      decimal.Decimal `json:"lmt_price"`
	AuxPrice      decimal.Decimal `json:"aux_price"`
	TIF           string          `json:"tif"`
	OutsideRTH    bool            `json:"outside_rth"`
}

// Frame is a single message on the venue connection. Type selects which
// of the optional payload fields is populated.
type Frame struct {
	Type      string                 `json:"type"`
	ClientID  int                    `json:"client_id,omitempty"`
	OrderID   int64                  `json:"order_id,omitempty"`
	ReqID     int64                  `json:"req_id,omitempty"`
	Contract  *Contract              `json:"contract,omitempty"`
	Order     *WireOrder             `json:"order,omitempty"`
	Status    *types.StatusEvent     `json:"status,omitempty"`
	Open      *types.OpenOrder       `json:"open_order,omitempty"`
	Execution *types.ExecutionRecord `json:"execution,omitempty"`
	Account   string                 `json:"account,omitempty"`
	Key       string                 `json:"key,omitempty"`
	Value     string                 `json:"value,omitempty"`
	Currency  string                 `json:"currency,omitempty"`
	Code      int                    `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// Conn is a single established venue connection.
type Conn interface {
	ReadFrame() (*Frame, error)
	WriteFrame(*Frame) error
	Close() error
}

// Dialer establishes venue connections. The websocket dialer is used in
// production; tests substitute in-process fakes.
type Dialer interface {
	Dial(host string, port int) (Conn, error)
}

// WebsocketDialer dials the venue gateway over websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// NewWebsocketDialer returns a dialer with the default handshake timeout.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{HandshakeTimeout: 10 * time.Second}
}

func (d *WebsocketDialer) Dial(host string, port int) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/"}
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	ws, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailure, err)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn wraps a websocket connection with JSON frame codec. Writes are
// serialized; gorilla/websocket allows only one concurrent writer.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	var frame Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func (c *wsConn) WriteFrame(frame *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
