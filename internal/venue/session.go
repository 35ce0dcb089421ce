package venue

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/interbroker/bridge-api/internal/types"
)

// State is the connection state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// connectTimeout bounds the wait for the venue's initial handshake,
// which delivers the first valid order id.
const connectTimeout = 10 * time.Second

type accountKey struct {
	Account  string
	Key      string
	Currency string
}

// snapshotCollector gathers the frames of one outstanding snapshot
// request (open orders or executions), keyed by request id. One-shot:
// completed by the matching end frame or abandoned by the caller after
// its settling window.
type snapshotCollector struct {
	mu         sync.Mutex
	openOrders []types.OpenOrder
	executions []types.ExecutionRecord
	done       chan struct{}
	once       sync.Once
}

func newSnapshotCollector() *snapshotCollector {
	return &snapshotCollector{done: make(chan struct{})}
}

func (c *snapshotCollector) finish() {
	c.once.Do(func() { close(c.done) })
}

// Session owns exactly one physical connection to the venue gateway plus
// the order-identifier sequence. A background pump goroutine decodes
// inbound frames and dispatches them; all dispatch targets are
// non-blocking so the pump never stalls.
type Session struct {
	host     string
	port     int
	clientID int
	dialer   Dialer

	mu          sync.Mutex
	state       State
	conn        Conn
	feed        *StatusFeed
	nextOrderID int64
	hasOrderID  bool
	pumpDone    chan struct{}

	// Shared tables written by the pump and read by callers.
	executions    map[int64][]types.ExecutionRecord
	accountValues map[accountKey]string
	orderErrors   map[int64]error

	collectorMu sync.Mutex
	collectors  map[int64]*snapshotCollector
	reqSeq      int64
}

// NewSession creates a session for the given gateway endpoint using the
// production websocket transport. The session does not connect until
// Connect is called.
func NewSession(host string, port, clientID int) *Session {
	return NewSessionWithDialer(host, port, clientID, NewWebsocketDialer())
}

// NewSessionWithDialer creates a session with a custom transport dialer.
func NewSessionWithDialer(host string, port, clientID int, dialer Dialer) *Session {
	return &Session{
		host:          host,
		port:          port,
		clientID:      clientID,
		dialer:        dialer,
		state:         StateDisconnected,
		feed:          NewStatusFeed(),
		executions:    make(map[int64][]types.ExecutionRecord),
		accountValues: make(map[accountKey]string),
		orderErrors:   make(map[int64]error),
		collectors:    make(map[int64]*snapshotCollector),
	}
}

// ClientID returns the client identifier this session connects with.
func (s *Session) ClientID() int {
	return s.clientID
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session holds a live connection.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Feed returns the status feed fed by this session's pump. The feed is
// replaced on every successful Connect.
func (s *Session) Feed() *StatusFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed
}

// Connect establishes the connection and blocks until the venue's
// handshake delivers the first valid order id, or the connect timeout
// elapses. Idempotent: returns nil without reconnecting when already
// connected. On timeout the transport is closed and the pump reaped, so
// no background task is left dangling.
func (s *Session) Connect() error {
	logger := log.With().
		Str("host", s.host).
		Int("port", s.port).
		Int("client_id", s.clientID).
		Logger()

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateConnected:
		s.mu.Unlock()
		logger.Info().Msg("already connected to venue gateway")
		return nil
	case StateConnecting:
		s.mu.Unlock()
		return ErrConnectFailure
	}
	s.state = StateConnecting
	s.mu.Unlock()

	logger.Info().Msg("connecting to venue gateway")

	conn, err := s.dialer.Dial(s.host, s.port)
	if err != nil {
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		logger.Error().Err(err).Msg("venue gateway dial failed")
		return err
	}

	feed := NewStatusFeed()
	handshake := make(chan struct{})
	pumpDone := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.feed = feed
	s.hasOrderID = false
	s.orderErrors = make(map[int64]error)
	s.pumpDone = pumpDone
	s.mu.Unlock()

	go s.pump(conn, feed, handshake, pumpDone)

	if err := conn.WriteFrame(&Frame{Type: FrameStartAPI, ClientID: s.clientID}); err != nil {
		conn.Close()
		<-pumpDone
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDisconnected
		}
		s.conn = nil
		s.mu.Unlock()
		logger.Error().Err(err).Msg("failed to start venue handshake")
		return ErrConnectFailure
	}

	select {
	case <-handshake:
		// Disconnect may have raced the handshake; a closed session
		// never flips back to Connected.
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		s.state = StateConnected
		s.mu.Unlock()
		logger.Info().Msg("connected to venue gateway")
		return nil
	case <-pumpDone:
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDisconnected
		}
		s.conn = nil
		s.mu.Unlock()
		logger.Error().Msg("venue connection dropped during handshake")
		return ErrConnectFailure
	case <-time.After(connectTimeout):
		conn.Close()
		<-pumpDone
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDisconnected
		}
		s.conn = nil
		s.mu.Unlock()
		feed.Close()
		logger.Error().Msg("venue handshake timed out")
		return ErrConnectFailure
	}
}

// Disconnect signals the pump to stop and closes the transport. Safe to
// call multiple times; never blocks indefinitely. The session cannot be
// reused afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	feed := s.feed
	pumpDone := s.pumpDone
	alreadyClosed := s.state == StateClosed
	s.state = StateClosed
	s.conn = nil
	s.mu.Unlock()

	if alreadyClosed {
		return
	}

	if conn != nil {
		conn.Close()
	}
	if feed != nil {
		feed.Close()
	}
	if pumpDone != nil {
		select {
		case <-pumpDone:
		case <-time.After(2 * time.Second):
		}
	}
	log.Info().Int("client_id", s.clientID).Msg("disconnected from venue gateway")
}

// NextOrderID returns the current order identifier and atomically
// advances the counter. Fails when the handshake has not completed:
// placing an order with a guessed id is a protocol violation.
func (s *Session) NextOrderID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasOrderID {
		return 0, ErrNoOrderID
	}
	id := s.nextOrderID
	s.nextOrderID++
	return id, nil
}

// send transmits a frame on the live connection.
func (s *Session) send(frame *Frame) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteFrame(frame)
}

// pump is the session's only background task. It continuously decodes
// inbound frames and dispatches them to the feed, the shared tables and
// any registered snapshot collectors. Handlers here must stay fast and
// non-blocking.
func (s *Session) pump(conn Conn, feed *StatusFeed, handshake chan struct{}, done chan struct{}) {
	defer close(done)
	logger := log.With().
		Int("client_id", s.clientID).
		Str("component", "venue_session").
		Logger()

	handshaken := false

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			logger.Debug().Err(err).Msg("venue connection read loop ended")
			s.markDisconnected(feed)
			return
		}

		switch frame.Type {
		case FrameNextValidID:
			s.mu.Lock()
			if frame.OrderID > s.nextOrderID {
				s.nextOrderID = frame.OrderID
			}
			s.hasOrderID = true
			s.mu.Unlock()
			logger.Info().Int64("next_order_id", frame.OrderID).Msg("received next valid order id")
			if !handshaken {
				handshaken = true
				close(handshake)
			}

		case FrameOrderStatus:
			if frame.Status == nil {
				continue
			}
			logger.Debug().
				Int64("order_id", frame.Status.VenueOrderID).
				Str("status", frame.Status.RawStatus).
				Str("filled", frame.Status.Filled.String()).
				Msg("order status update")
			feed.Publish(*frame.Status)

		case FrameExecDetails:
			if frame.Execution == nil {
				continue
			}
			exec := *frame.Execution
			logger.Info().
				Int64("order_id", exec.VenueOrderID).
				Str("exec_id", exec.ExecutionID).
				Str("shares", exec.Shares.String()).
				Str("price", exec.Price.String()).
				Msg("execution report")
			s.mu.Lock()
			s.executions[exec.VenueOrderID] = append(s.executions[exec.VenueOrderID], exec)
			s.mu.Unlock()
			if c := s.collector(frame.ReqID); c != nil {
				c.mu.Lock()
				c.executions = append(c.executions, exec)
				c.mu.Unlock()
			}

		case FrameExecDetailsEnd:
			if c := s.collector(frame.ReqID); c != nil {
				c.finish()
			}

		case FrameOpenOrder:
			if frame.Open == nil {
				continue
			}
			logger.Debug().
				Int64("order_id", frame.Open.VenueOrderID).
				Str("symbol", frame.Open.Symbol).
				Str("status", frame.Open.RawStatus).
				Msg("open order report")
			if c := s.collector(frame.ReqID); c != nil {
				c.mu.Lock()
				c.openOrders = append(c.openOrders, *frame.Open)
				c.mu.Unlock()
			}

		case FrameOpenOrderEnd:
			if c := s.collector(frame.ReqID); c != nil {
				c.finish()
			}

		case FrameAccountValue:
			s.mu.Lock()
			s.accountValues[accountKey{frame.Account, frame.Key, frame.Currency}] = frame.Value
			s.mu.Unlock()

		case FrameError:
			logger.Error().
				Int("code", frame.Code).
				Int64("order_id", frame.OrderID).
				Str("message", frame.Message).
				Msg("venue reported error")
			if frame.Code == CodeConnectRefused || frame.Code == CodeConnectivityLost {
				s.markDisconnected(feed)
				conn.Close()
				return
			}
			if frame.Code == CodeDuplicateOrderID && frame.OrderID != 0 {
				s.mu.Lock()
				s.orderErrors[frame.OrderID] = ErrDuplicateOrderID
				s.mu.Unlock()
			}

		case FrameConnectionClosed:
			logger.Info().Msg("venue closed the connection")
			s.markDisconnected(feed)
			return
		}
	}
}

// markDisconnected flips the state on connectivity loss and releases all
// waiters. A session the caller already closed stays Closed.
func (s *Session) markDisconnected(feed *StatusFeed) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	feed.Close()
}

func (s *Session) collector(reqID int64) *snapshotCollector {
	s.collectorMu.Lock()
	defer s.collectorMu.Unlock()
	return s.collectors[reqID]
}

func (s *Session) registerCollector() (int64, *snapshotCollector) {
	s.collectorMu.Lock()
	defer s.collectorMu.Unlock()
	s.reqSeq++
	c := newSnapshotCollector()
	s.collectors[s.reqSeq] = c
	return s.reqSeq, c
}

func (s *Session) releaseCollector(reqID int64) {
	s.collectorMu.Lock()
	defer s.collectorMu.Unlock()
	delete(s.collectors, reqID)
}

// OpenOrders requests the venue's current open-order set and waits up to
// the settling window for the batch. The snapshot is best-effort: when
// the end frame does not arrive inside the window, whatever was
// collected is returned.
func (s *Session) OpenOrders(settle time.Duration) ([]types.OpenOrder, error) {
	reqID, c := s.registerCollector()
	defer s.releaseCollector(reqID)

	if err := s.send(&Frame{Type: FrameReqOpenOrders, ReqID: reqID}); err != nil {
		return nil, err
	}

	if err := s.waitCollector(c, settle); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.OpenOrder, len(c.openOrders))
	copy(out, c.openOrders)
	return out, nil
}

// Executions requests the venue's execution reports for this client and
// waits up to the settling window for the batch.
func (s *Session) Executions(settle time.Duration) ([]types.ExecutionRecord, error) {
	reqID, c := s.registerCollector()
	defer s.releaseCollector(reqID)

	if err := s.send(&Frame{Type: FrameReqExecutions, ReqID: reqID, ClientID: s.clientID}); err != nil {
		return nil, err
	}

	if err := s.waitCollector(c, settle); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ExecutionRecord, len(c.executions))
	copy(out, c.executions)
	return out, nil
}

func (s *Session) waitCollector(c *snapshotCollector, settle time.Duration) error {
	s.mu.Lock()
	feed := s.feed
	s.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-feed.closed:
		return ErrConnectionLost
	case <-time.After(settle):
		return nil
	}
}

// placementFailure returns the venue error recorded for an order's
// placement, if any. Reset on reconnect.
func (s *Session) placementFailure(orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderErrors[orderID]
}

// ExecutionsFor returns the cached execution reports for an order,
// accumulated by the pump since the session connected.
func (s *Session) ExecutionsFor(orderID int64) []types.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	execs := s.executions[orderID]
	out := make([]types.ExecutionRecord, len(execs))
	copy(out, execs)
	return out
}

// RequestAccountUpdates asks the venue to stream account values into the
// session's account table.
func (s *Session) RequestAccountUpdates(account string) error {
	return s.send(&Frame{Type: FrameReqAccountUpdates, Account: account})
}

// AccountValues returns a snapshot of the account values received so
// far, keyed account/key/currency.
func (s *Session) AccountValues() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.accountValues))
	for k, v := range s.accountValues {
		out[k.Account+"/"+k.Key+"/"+k.Currency] = v
	}
	return out
}
