// Command sshrelay relays HTTP-looking tunnels to services on its own bind
// address, by default the local SSH server.
//
// Usage:
//
//	sshrelay 80,8080
//	sshrelay -b 0.0.0.0 -p 80,8080
package main

import (
	"os"

	"github.com/ayanrajpoot10/ssh-relay/internal/cli"
	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

func main() {
	app := cli.App{
		Name:    "sshrelay",
		Short:   "Multi-port relay tunnelling SSH through HTTP-looking handshakes",
		Profile: config.SelfRelayProfile,
	}
	os.Exit(app.Execute(os.Args[1:]))
}
