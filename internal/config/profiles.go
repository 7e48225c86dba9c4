package config

import (
	"net"
	"strconv"
)

const (
	colorTag = `<font color="null">`
	closeTag = `</font>`
)

// SelfRelayResponse is the success line of the self-relay profile.
const SelfRelayResponse = "HTTP/1.1 200 " + colorTag + closeTag + "\r\n\r\n"

// LoopbackResponse is the success line of the loopback tunnel profile.
const LoopbackResponse = "HTTP/1.1 101 " + colorTag + "WebSocket" + closeTag + " \r\n\r\n"

// SelfRelayProfile returns the configuration of a relay that only forwards to
// services on its own bind address, falling back to its SSH port.
func SelfRelayProfile(bindAddress string) Listener {
	if bindAddress == "" {
		bindAddress = DefaultBindAddress
	}
	return Listener{
		BindAddress:        bindAddress,
		DefaultDestination: net.JoinHostPort(bindAddress, strconv.Itoa(SSHPort)),
		DefaultPort:        SSHPort,
		SuccessResponse:    SelfRelayResponse,
		Policy:             PolicySelfRelay,
	}.WithDefaults()
}

// LoopbackProfile returns the configuration of a WebSocket-looking tunnel
// to services listening on the loopback interface.
func LoopbackProfile(bindAddress string) Listener {
	if bindAddress == "" {
		bindAddress = DefaultBindAddress
	}
	return Listener{
		BindAddress:        bindAddress,
		DefaultDestination: "127.0.0.1:22",
		DefaultPort:        HTTPPort,
		SuccessResponse:    LoopbackResponse,
		Policy:             PolicyLoopback,
	}.WithDefaults()
}
