package tunnel

import (
	"testing"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

func TestAllowed(t *testing.T) {
	self := config.SelfRelayProfile("10.0.0.5")
	selfAny := config.SelfRelayProfile("")
	loop := config.LoopbackProfile("")

	tests := []struct {
		cfg  config.Listener
		host string
		want bool
	}{
		{self, "10.0.0.5", true},
		{self, "10.0.0.50", false},
		{self, "127.0.0.1", false},
		{selfAny, "0.0.0.0", true},
		{selfAny, "192.168.1.1", false},
		{loop, "127.0.0.1", true},
		{loop, "127.1.2.3", true},
		{loop, "localhost", true},
		{loop, "LocalHost", true},
		{loop, "::1", true},
		{loop, "[::1]", true},
		{loop, "127.0.0.1.example.com", false},
		{loop, "10.0.0.1", false},
		{loop, "example.com", false},
	}
	for _, tt := range tests {
		if got := Allowed(tt.cfg, tt.host); got != tt.want {
			t.Errorf("Allowed(%s bind=%s, %q) = %v, want %v", tt.cfg.Policy, tt.cfg.BindAddress, tt.host, got, tt.want)
		}
	}
}
