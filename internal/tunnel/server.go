package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// Manager starts and stops the listeners of every configured port as a unit.
// One port failing to bind never keeps the others from serving.
type Manager struct {
	log       *zap.Logger
	transport Transport
	stagger   time.Duration

	mu        sync.Mutex
	started   bool
	stopped   bool
	listeners []*Listener
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTransport replaces the host network stack, mainly for tests.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithStagger sets the pause between starting two listeners.
func WithStagger(d time.Duration) Option {
	return func(m *Manager) { m.stagger = d }
}

// NewManager constructs a Manager with the default transport and stagger.
func NewManager(log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		log:       log,
		transport: NetTransport{},
		stagger:   DefaultStagger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartAll starts one listener per config, pausing between them to avoid an
// accept storm at boot. Listeners that fail to start are logged and skipped.
// ErrNoListeners is returned only when none started. The listener set is
// fixed afterwards; StartAll can be called once.
func (m *Manager) StartAll(ctx context.Context, configs []config.Listener) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	for i, cfg := range configs {
		if i > 0 && m.stagger > 0 {
			select {
			case <-time.After(m.stagger):
			case <-ctx.Done():
				m.log.Info("startup interrupted", zap.Int("remaining", len(configs)-i))
				return m.checkStarted()
			}
		}
		l, err := NewListener(cfg, m.transport, m.log)
		if err != nil {
			m.log.Error("invalid listener configuration", zap.Int("port", cfg.Port), zap.Error(err))
			continue
		}
		if err := l.Start(ctx); err != nil {
			m.log.Error("failed to start listener", zap.Int("port", cfg.Port), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			l.Stop()
			return m.checkStarted()
		}
		m.listeners = append(m.listeners, l)
		m.mu.Unlock()
	}
	return m.checkStarted()
}

func (m *Manager) checkStarted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.listeners) == 0 {
		return ErrNoListeners
	}
	return nil
}

// StopAll stops every listener and blocks until each has released its socket
// and torn down its sessions.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.stopped = true
	listeners := append([]*Listener(nil), m.listeners...)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			l.Stop()
		}(l)
	}
	wg.Wait()
	m.log.Info("all listeners stopped", zap.Int("count", len(listeners)))
}

// Addrs returns the bound addresses of the running listeners in start order.
func (m *Manager) Addrs() []net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]net.Addr, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l.Addr())
	}
	return out
}

// Active returns the number of sessions across all listeners.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.listeners {
		n += l.Active()
	}
	return n
}
