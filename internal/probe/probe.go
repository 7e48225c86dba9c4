// Package probe opens a tunnel through a relay the way a client would and
// checks that an SSH server answers at the far end.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"

	"github.com/ayanrajpoot10/ssh-relay/internal/handshake"
)

// DefaultTimeout bounds a whole probe when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// SplitDelay separates the handshake from the X-Split padding segment so the
// relay reads them separately.
const SplitDelay = 100 * time.Millisecond

// ErrRefused is returned when the relay answers with a non-success status.
var ErrRefused = errors.New("tunnel refused")

// Options describes one probe.
type Options struct {
	// Relay is the relay's host:port.
	Relay   string
	Request handshake.Request

	// User and Password authenticate against the SSH server. Without User
	// the probe stops after key exchange.
	User     string
	Password string

	Timeout time.Duration
	// Dialer reaches the relay. Nil dials directly.
	Dialer proxy.Dialer
}

// Result is what a probe learned.
type Result struct {
	Status        handshake.Status
	ServerVersion string
	HostKeyType   string
	Fingerprint   string
	Authenticated bool
	Elapsed       time.Duration
}

// Run performs the probe described by opts.
func Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()

	conn, err := dial(ctx, opts.Dialer, opts.Relay)
	if err != nil {
		return res, fmt.Errorf("dial relay %s: %w", opts.Relay, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := sendHandshake(ctx, conn, opts.Request); err != nil {
		return res, err
	}

	br := bufio.NewReader(conn)
	res.Status, err = handshake.ReadStatus(br)
	if err != nil {
		return res, err
	}
	if !res.Status.OK() {
		return res, fmt.Errorf("%w: %d %s", ErrRefused, res.Status.Code, res.Status.Phrase)
	}

	rc := &recordingConn{Conn: conn, r: br}
	var hostKey ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User: opts.User,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			hostKey = key
			return nil
		},
		Timeout: timeout,
	}
	if opts.User == "" {
		cfg.User = "probe"
	} else {
		cfg.Auth = []ssh.AuthMethod{ssh.Password(opts.Password)}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(rc, opts.Relay, cfg)
	res.ServerVersion = rc.version()
	if hostKey != nil {
		res.HostKeyType = hostKey.Type()
		res.Fingerprint = ssh.FingerprintSHA256(hostKey)
	}
	res.Elapsed = time.Since(start)
	if err != nil {
		if hostKey != nil && opts.User == "" {
			return res, nil
		}
		return res, fmt.Errorf("ssh handshake through tunnel: %w", err)
	}
	go ssh.DiscardRequests(reqs)
	go func() {
		for nc := range chans {
			nc.Reject(ssh.Prohibited, "probe accepts no channels")
		}
	}()
	res.Authenticated = true
	sshConn.Close()
	return res, nil
}

func dial(ctx context.Context, d proxy.Dialer, addr string) (net.Conn, error) {
	if d == nil {
		var nd net.Dialer
		return nd.DialContext(ctx, "tcp", addr)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

func sendHandshake(ctx context.Context, conn net.Conn, req handshake.Request) error {
	if _, err := io.WriteString(conn, req.String()); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	if !req.Split {
		return nil
	}
	select {
	case <-time.After(SplitDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if _, err := io.WriteString(conn, strings.Repeat("\x00", 64)); err != nil {
		return fmt.Errorf("write split padding: %w", err)
	}
	return nil
}

// recordingConn reads through the status reader, so bytes it buffered past
// the relay's response reach the SSH client, and remembers the server's
// identification line.
type recordingConn struct {
	net.Conn
	r *bufio.Reader

	mu    sync.Mutex
	first []byte
	full  bool
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.mu.Lock()
	if !c.full && n > 0 {
		c.first = append(c.first, p[:n]...)
		if i := strings.IndexByte(string(c.first), '\n'); i != -1 {
			c.first = c.first[:i]
			c.full = true
		} else if len(c.first) > 255 {
			c.full = true
		}
	}
	c.mu.Unlock()
	return n, err
}

func (c *recordingConn) version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimRight(string(c.first), "\r")
}
