// Command tunnelprobe checks a relay end to end: it sends a handshake, expects
// a success status, and completes an SSH key exchange through the tunnel.
//
// Usage:
//
//	tunnelprobe relay.example.com:80 --host 127.0.0.1:22
//	tunnelprobe relay.example.com:80 --user alice --password secret --split
//	tunnelprobe relay.example.com:80 --socks5 127.0.0.1:1080
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/proxy"

	"github.com/ayanrajpoot10/ssh-relay/internal/probe"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		opts    probe.Options
		socks5  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:           "tunnelprobe <relay-host:port>",
		Short:         "Open a tunnel through a relay and verify an SSH server answers behind it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Relay = args[0]
			opts.Timeout = timeout
			if opts.Request.Host == "" {
				host, _, err := net.SplitHostPort(opts.Relay)
				if err != nil {
					return fmt.Errorf("relay address: %w", err)
				}
				opts.Request.Host = host
			}
			if socks5 != "" {
				d, err := proxy.SOCKS5("tcp", socks5, nil, &net.Dialer{Timeout: timeout})
				if err != nil {
					return fmt.Errorf("socks5 %s: %w", socks5, err)
				}
				opts.Dialer = d
			}

			res, err := probe.Run(context.Background(), opts)
			out := cmd.OutOrStdout()
			if res.Status.Code != 0 {
				fmt.Fprintf(out, "status:      %d %s\n", res.Status.Code, res.Status.Phrase)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "server:      %s\n", res.ServerVersion)
			fmt.Fprintf(out, "host key:    %s %s\n", res.HostKeyType, res.Fingerprint)
			fmt.Fprintf(out, "authenticated: %v\n", res.Authenticated)
			fmt.Fprintf(out, "elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Request.RealHost, "host", "", "destination sent as X-Real-Host (empty uses the relay default)")
	f.StringVar(&opts.Request.Pass, "pass", "", "secret sent as X-Pass")
	f.BoolVar(&opts.Request.Split, "split", false, "send X-Split and a padding segment")
	f.StringVar(&opts.Request.Method, "method", "GET", "request method of the handshake line")
	f.StringVar(&opts.Request.Host, "front", "", "Host header (defaults to the relay host)")
	f.BoolVar(&opts.Request.Upgrade, "upgrade", true, "add WebSocket upgrade headers")
	f.StringVar(&opts.User, "user", "", "SSH user; without it the probe stops after key exchange")
	f.StringVar(&opts.Password, "password", "", "SSH password")
	f.StringVar(&socks5, "socks5", "", "reach the relay through this SOCKS5 proxy")
	f.DurationVar(&timeout, "timeout", probe.DefaultTimeout, "overall probe timeout")
	return cmd
}
