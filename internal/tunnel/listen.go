package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayanrajpoot10/ssh-relay/internal/auth"
	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// Listener owns one listening socket and the sessions accepted on it.
type Listener struct {
	cfg       config.Listener
	auth      auth.Authenticator
	transport Transport
	log       *zap.Logger

	ln       net.Listener
	sessions *Registry
	wg       sync.WaitGroup

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewListener validates cfg and prepares a listener for it. Nothing is bound
// until Start.
func NewListener(cfg config.Listener, transport Transport, log *zap.Logger) (*Listener, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("listener %s: %w", cfg.Address(), err)
	}
	a, err := auth.New(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("listener %s: %w", cfg.Address(), err)
	}
	if transport == nil {
		transport = NetTransport{}
	}
	return &Listener{
		cfg:       cfg,
		auth:      a,
		transport: transport,
		log:       log.With(zap.Int("port", cfg.Port)),
		sessions:  NewRegistry(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start binds the listening socket and launches the accept loop. A bind
// failure is returned wrapped in ErrBind and leaves the listener inert.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := l.transport.Listen(ctx, l.cfg.Address())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBind, l.cfg.Address(), err)
	}
	l.ln = ln
	l.log.Info("listening", zap.Stringer("addr", ln.Addr()), zap.Stringer("policy", l.cfg.Policy))
	go l.serve()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Active returns the number of registered sessions.
func (l *Listener) Active() int {
	return l.sessions.Len()
}

// serve accepts connections until Stop. Each Accept waits at most
// AcceptPollInterval so the loop keeps observing the stop signal.
func (l *Listener) serve() {
	defer close(l.done)
	defer l.ln.Close()
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		if dl, ok := l.ln.(interface{ SetDeadline(time.Time) error }); ok {
			dl.SetDeadline(time.Now().Add(AcceptPollInterval))
		}
		conn, err := l.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-l.stop:
			default:
				l.log.Error("accept failed, listener stopped", zap.Error(err))
			}
			return
		}
		l.spawn(conn)
	}
}

// spawn registers a session for conn and runs it in its own goroutine. A
// connection arriving after shutdown began is closed unregistered.
func (l *Listener) spawn(conn net.Conn) {
	sess := NewSession(conn, &l.cfg, l.auth, l.transport, l.log)
	l.wg.Add(1)
	if !l.sessions.Add(sess) {
		l.wg.Done()
		conn.Close()
		return
	}
	l.log.Debug("connection added", zap.String("session", sess.ID()), zap.Int("active", l.sessions.Len()))
	go func() {
		defer l.wg.Done()
		err := sess.Handle()
		if l.sessions.Remove(sess.ID()) {
			l.log.Debug("connection removed", zap.String("session", sess.ID()), zap.Int("active", l.sessions.Len()))
		}
		if err != nil {
			l.log.Debug("session ended", zap.String("session", sess.ID()), zap.Error(err))
		}
	}()
}

// Stop stops accepting, releases the listening socket, closes every tracked
// session and waits for their goroutines to finish. It is idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		if l.ln == nil {
			return
		}
		l.ln.Close()
		<-l.done

		open := l.sessions.Close()
		if len(open) > 0 {
			l.log.Info("closing active sessions", zap.Int("count", len(open)))
		}
		for _, s := range open {
			s.Close()
		}
		l.wg.Wait()
		l.log.Info("listener stopped")
	})
}
