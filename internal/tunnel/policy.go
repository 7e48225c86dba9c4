package tunnel

import (
	"net"
	"strings"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// Allowed reports whether cfg's policy lets a session dial host.
func Allowed(cfg config.Listener, host string) bool {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	switch cfg.Policy {
	case config.PolicySelfRelay:
		bind := strings.TrimSuffix(strings.TrimPrefix(cfg.BindAddress, "["), "]")
		return host == bind
	case config.PolicyLoopback:
		if strings.EqualFold(host, "localhost") {
			return true
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	default:
		return false
	}
}
