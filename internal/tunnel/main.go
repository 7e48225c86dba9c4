package tunnel

import (
	"context"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// Run starts every listener and serves until ctx is cancelled, then stops
// them all. It returns ErrNoListeners when nothing could be started.
func Run(ctx context.Context, m *Manager, configs []config.Listener) error {
	if err := m.StartAll(ctx, configs); err != nil {
		return err
	}
	<-ctx.Done()
	m.log.Info("shutting down")
	m.StopAll()
	return nil
}
