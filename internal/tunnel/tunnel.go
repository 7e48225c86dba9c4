package tunnel

import (
	"errors"
	"time"
)

// Status lines written to clients whose tunnel is refused. Successful
// tunnels get the listener's configured success line instead.
const (
	ResponseNoHost    = "HTTP/1.1 400 NoXRealHost!\r\n\r\n"
	ResponseWrongPass = "HTTP/1.1 400 WrongPass!\r\n\r\n"
	ResponseForbidden = "HTTP/1.1 403 Forbidden!\r\n\r\n"
)

// AcceptPollInterval bounds each Accept call so a listener notices Stop.
const AcceptPollInterval = 2 * time.Second

// DefaultStagger is the pause between starting two listeners.
const DefaultStagger = 100 * time.Millisecond

var (
	// ErrBind is returned when a listener cannot bind its address. It only affects that listener.
	ErrBind = errors.New("bind failed")
	// ErrHandshake covers unreadable handshakes and undeterminable destinations.
	ErrHandshake = errors.New("bad handshake")
	// ErrAuth means the client presented the wrong secret.
	ErrAuth = errors.New("wrong secret")
	// ErrPolicy means the destination is not allowed by the listener's policy.
	ErrPolicy = errors.New("destination forbidden")
	// ErrDial means the destination could not be resolved or connected.
	ErrDial = errors.New("dial failed")
	// ErrRelay means the tunnel failed mid-stream.
	ErrRelay = errors.New("relay failed")

	// ErrSessionClosed is returned when a session is closed while it is dialing.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoListeners is returned by StartAll when not a single listener could start.
	ErrNoListeners = errors.New("no listener could be started")
	// ErrAlreadyStarted is returned by a second StartAll call.
	ErrAlreadyStarted = errors.New("manager already started")
)
