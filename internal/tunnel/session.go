package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/ayanrajpoot10/ssh-relay/internal/auth"
	"github.com/ayanrajpoot10/ssh-relay/internal/config"
	"github.com/ayanrajpoot10/ssh-relay/internal/handshake"
	"github.com/ayanrajpoot10/ssh-relay/internal/logging"
)

// State is a session's position in its lifecycle.
type State int32

const (
	StateInit State = iota
	StateAuthorizing
	StateDialing
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthorizing:
		return "authorizing"
	case StateDialing:
		return "dialing"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session manages a single client connection: it reads the handshake,
// checks the secret and destination, dials, and relays until the tunnel ends.
// The session owns the client connection, and the destination connection
// once dialed.
type Session struct {
	id     string
	client net.Conn
	cfg    *config.Listener
	auth   auth.Authenticator
	dialer proxy.ContextDialer
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu     sync.Mutex
	target net.Conn
	closed bool

	// handshake holds the raw handshake until the tunnel is up. It is framing
	// and is never forwarded.
	handshake []byte
}

// NewSession wraps an accepted client connection. cfg must outlive the session.
func NewSession(client net.Conn, cfg *config.Listener, a auth.Authenticator, dialer proxy.ContextDialer, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:     id,
		client: client,
		cfg:    cfg,
		auth:   a,
		dialer: dialer,
		log:    log.With(zap.String("session", id), zap.Stringer("remote", client.RemoteAddr())),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the session's registry handle.
func (s *Session) ID() string { return s.id }

// State returns the session's current state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Close shuts down both connections and cancels a pending dial. It is safe to
// call more than once and from any goroutine. Errors from closing are
// deliberately ignored: the session is over either way.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	target := s.target
	s.mu.Unlock()

	s.cancel()
	_ = s.client.Close()
	if target != nil {
		_ = target.Close()
	}
	s.setState(StateClosed)
}

// Handle runs the session to completion and closes it. The returned error
// wraps one of ErrHandshake, ErrAuth, ErrPolicy, ErrDial or ErrRelay, and is
// nil when the tunnel ended normally.
func (s *Session) Handle() error {
	defer s.Close()
	s.log.Debug("connection opened")

	res, err := s.readHandshake()
	if err != nil {
		return err
	}

	s.setState(StateAuthorizing)
	if err := s.authorize(res); err != nil {
		return err
	}

	s.setState(StateDialing)
	target, err := s.dial(res.Destination())
	if err != nil {
		return err
	}

	if err := writeFull(s.client, []byte(s.cfg.SuccessResponse)); err != nil {
		return fmt.Errorf("%w: write success response: %v", ErrRelay, err)
	}
	s.handshake = nil
	s.log.Info("tunnel established", zap.String("destination", res.Destination()))

	s.setState(StateRelaying)
	stats := NewRelay(*s.cfg).Run(s.client, target)
	fields := []zap.Field{
		zap.String("reason", string(stats.Reason)),
		zap.Int64("bytes_up", stats.Up),
		zap.Int64("bytes_down", stats.Down),
		zap.Duration("duration", stats.Duration),
	}
	if stats.Reason == ReasonError {
		if !logging.IsBenign(stats.Err) {
			s.log.Warn("tunnel failed", append(fields, zap.Error(stats.Err))...)
		} else {
			s.log.Info("tunnel closed", fields...)
		}
		return fmt.Errorf("%w: %v", ErrRelay, stats.Err)
	}
	s.log.Info("tunnel closed", fields...)
	return nil
}

func (s *Session) readHandshake() (handshake.Result, error) {
	buf := make([]byte, s.cfg.HandshakeBufferSize)
	raw, res, err := handshake.Read(s.client, buf, handshake.Options{
		DefaultDestination:  s.cfg.DefaultDestination,
		RequireExplicitHost: s.cfg.RequireExplicitHost,
		DefaultPort:         s.cfg.DefaultPort,
		ConnectPort:         config.ConnectDefaultPort,
	})
	s.handshake = raw
	if len(raw) > 0 {
		s.log.Debug("handshake received", zap.String("request", requestLine(raw)))
	}
	switch {
	case errors.Is(err, handshake.ErrNoHost):
		s.log.Info("no X-Real-Host and no default destination")
		s.reply(ResponseNoHost)
		return res, fmt.Errorf("%w: %v", ErrHandshake, err)
	case err != nil:
		if !logging.IsBenign(err) {
			s.log.Info("unusable handshake", zap.Error(err))
		}
		return res, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return res, nil
}

// authorize applies the secret check, which is terminal on mismatch, and then
// the destination policy.
func (s *Session) authorize(res handshake.Result) error {
	granted := false
	if s.auth != nil {
		if !res.HasSecret || !s.auth.Verify(res.Secret) {
			s.log.Info("wrong secret", zap.Bool("presented", res.HasSecret))
			s.reply(ResponseWrongPass)
			return ErrAuth
		}
		granted = s.cfg.SecretGrantsAnyDestination
	}
	if !granted && !Allowed(*s.cfg, res.Host) {
		s.log.Info("destination forbidden", zap.String("destination", res.Destination()), zap.Stringer("policy", s.cfg.Policy))
		s.reply(ResponseForbidden)
		return fmt.Errorf("%w: %s", ErrPolicy, res.Destination())
	}
	return nil
}

// dial connects to dest and hands the connection to the session. Failures are
// silent towards the client.
func (s *Session) dial(dest string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
	defer cancel()

	start := time.Now()
	target, err := s.dialer.DialContext(ctx, "tcp", dest)
	if err != nil {
		s.log.Info("dial failed", zap.String("destination", dest), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrDial, dest, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		target.Close()
		return nil, ErrSessionClosed
	}
	s.target = target
	s.mu.Unlock()

	s.log.Debug("connected to destination", zap.String("destination", dest), zap.Duration("took", time.Since(start)))
	return target, nil
}

// reply writes a refusal status line. A failed write changes nothing: the
// session closes right after.
func (s *Session) reply(status string) {
	_ = writeFull(s.client, []byte(status))
}

func requestLine(raw []byte) string {
	for i, b := range raw {
		if b == '\r' || b == '\n' {
			return string(raw[:i])
		}
	}
	if len(raw) > 128 {
		raw = raw[:128]
	}
	return string(raw)
}
