package venue

import "errors"

var (
	// ErrConnectFailure indicates the venue handshake did not complete
	// within the connect timeout, or the transport refused the dial.
	ErrConnectFailure = errors.New("failed to connect to venue gateway")

	// ErrNotConnected indicates an operation was attempted without a
	// live session.
	ErrNotConnected = errors.New("not connected to venue gateway")

	// ErrConnectionLost indicates the session dropped while a caller
	// was waiting on it.
	ErrConnectionLost = errors.New("venue gateway connection lost")

	// ErrNoOrderID indicates the handshake has not yet delivered a
	// valid order identifier.
	ErrNoOrderID = errors.New("no valid order id available")

	// ErrDuplicateOrderID indicates the venue rejected a reused order
	// identifier. Fatal for that placement; never retried with the
	// same id.
	ErrDuplicateOrderID = errors.New("venue rejected duplicate order id")

	// ErrSessionClosed indicates the session was shut down and cannot
	// be reused.
	ErrSessionClosed = errors.New("venue session closed")
)

// PlacementError is a request rejected before transmission, e.g. a limit
// order without a positive limit price.
type PlacementError struct {
	Reason string
}

func (e *PlacementError) Error() string {
	return "invalid order request: " + e.Reason
}
