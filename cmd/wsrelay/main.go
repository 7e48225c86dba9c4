// Command wsrelay answers WebSocket-looking handshakes and tunnels the
// connection to a service on the loopback interface, by default 127.0.0.1:22.
//
// Usage:
//
//	wsrelay 80,2082,8080
//	wsrelay -b 0.0.0.0 -p 80,2082,8080
package main

import (
	"os"

	"github.com/ayanrajpoot10/ssh-relay/internal/cli"
	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

func main() {
	app := cli.App{
		Name:    "wsrelay",
		Short:   "Multi-port WebSocket-style tunnel to loopback services",
		Profile: config.LoopbackProfile,
	}
	os.Exit(app.Execute(os.Args[1:]))
}
