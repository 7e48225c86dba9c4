// Package config holds the immutable per-listener configuration for ssh-relay
// and the two deployment profiles the relay binaries are built from.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Policy selects which destinations a listener is allowed to dial.
type Policy int

const (
	// PolicySelfRelay only allows destinations on the listener's own bind address.
	PolicySelfRelay Policy = iota
	// PolicyLoopback only allows destinations on the loopback interface.
	PolicyLoopback
)

func (p Policy) String() string {
	switch p {
	case PolicySelfRelay:
		return "self-relay"
	case PolicyLoopback:
		return "loopback"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

const (
	// DefaultBindAddress is the address listeners bind to when none is given.
	DefaultBindAddress = "0.0.0.0"

	// DefaultListenPort is used when no port is given on the command line.
	DefaultListenPort = 80

	// HandshakeBufferSize bounds the single handshake read and every relay read.
	HandshakeBufferSize = 8196 * 8

	// DefaultDialTimeout bounds resolving and connecting to a destination.
	DefaultDialTimeout = 10 * time.Second

	// DefaultPollInterval is the length of one relay poll cycle.
	DefaultPollInterval = 3 * time.Second

	// DefaultIdleCycles is the number of consecutive silent poll cycles a relay tolerates.
	DefaultIdleCycles = 60

	// SSHPort is the default destination port of the self-relay profile.
	SSHPort = 22

	// HTTPPort is the default destination port of the loopback tunnel profile.
	HTTPPort = 80

	// ConnectDefaultPort is the destination port assumed for CONNECT handshakes without a port.
	ConnectDefaultPort = 443
)

// Listener is the configuration of a single listening port. It must not be
// modified once the listener has started.
type Listener struct {
	BindAddress string
	Port        int

	// Secret is compared with the X-Pass header. Empty disables the check.
	// See package auth for the accepted forms.
	Secret string

	// DefaultDestination is dialed when the handshake carries no X-Real-Host.
	DefaultDestination string

	// DefaultPort is used when the destination has no port.
	DefaultPort int

	// SuccessResponse is written to the client once the destination is connected.
	SuccessResponse string

	Policy Policy

	// RequireExplicitHost rejects handshakes without X-Real-Host instead of
	// falling back to DefaultDestination.
	RequireExplicitHost bool

	// SecretGrantsAnyDestination skips Policy for clients presenting the
	// configured secret. It has no effect when Secret is empty.
	SecretGrantsAnyDestination bool

	HandshakeBufferSize int
	DialTimeout         time.Duration
	PollInterval        time.Duration
	IdleCycles          int
}

// Address returns the host:port the listener binds to.
func (l Listener) Address() string {
	return net.JoinHostPort(l.BindAddress, strconv.Itoa(l.Port))
}

// IdleBudget is the total silence a relay tolerates before it is torn down.
func (l Listener) IdleBudget() time.Duration {
	return l.PollInterval * time.Duration(l.IdleCycles)
}

// WithDefaults returns a copy of l with zero-valued tunables filled in.
func (l Listener) WithDefaults() Listener {
	if l.BindAddress == "" {
		l.BindAddress = DefaultBindAddress
	}
	if l.DefaultPort == 0 {
		l.DefaultPort = SSHPort
	}
	if l.HandshakeBufferSize <= 0 {
		l.HandshakeBufferSize = HandshakeBufferSize
	}
	if l.DialTimeout <= 0 {
		l.DialTimeout = DefaultDialTimeout
	}
	if l.PollInterval <= 0 {
		l.PollInterval = DefaultPollInterval
	}
	if l.IdleCycles <= 0 {
		l.IdleCycles = DefaultIdleCycles
	}
	return l
}

// Validate reports configuration errors that would prevent the listener from serving.
func (l Listener) Validate() error {
	if l.Port < 0 || l.Port > 65535 {
		return fmt.Errorf("invalid port %d", l.Port)
	}
	if l.DefaultPort <= 0 || l.DefaultPort > 65535 {
		return fmt.Errorf("invalid default port %d", l.DefaultPort)
	}
	if l.SuccessResponse == "" {
		return errors.New("success response must not be empty")
	}
	if l.Policy != PolicySelfRelay && l.Policy != PolicyLoopback {
		return fmt.Errorf("unknown %s", l.Policy)
	}
	return nil
}

// ForPorts expands a template into one listener per port.
func ForPorts(template Listener, ports []int) []Listener {
	out := make([]Listener, 0, len(ports))
	for _, p := range ports {
		l := template
		l.Port = p
		out = append(out, l)
	}
	return out
}

// ParsePorts parses a comma-separated port list such as "80,2082, 8080".
func ParsePorts(s string) ([]int, error) {
	var ports []int
	seen := make(map[int]bool)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("empty port in %q", s)
		}
		p, err := strconv.Atoi(field)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid port %q", field)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return ports, nil
}
