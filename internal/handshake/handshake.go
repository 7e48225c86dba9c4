// Package handshake parses the header-shaped block a client sends before its
// tunnel is established, and renders such blocks for clients.
//
// The block is not a conformant HTTP request: only a few "<Name>: <value>\r\n"
// markers are looked for, and everything else is framing that is never
// forwarded to the destination.
//
// Recognized headers:
//   - X-Real-Host: the destination as host[:port]
//   - X-Pass: the secret presented by the client
//   - X-Split: announces a padding segment that is read and discarded
package handshake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// Header names understood by the relay.
const (
	HeaderRealHost = "X-Real-Host"
	HeaderPass     = "X-Pass"
	HeaderSplit    = "X-Split"
)

// MethodConnect is the request method of CONNECT-style tunnels.
const MethodConnect = "CONNECT"

var (
	// ErrNoHost means no destination could be determined.
	ErrNoHost = errors.New("no destination host")
	// ErrBadDestination means the destination could not be split into host and port.
	ErrBadDestination = errors.New("malformed destination")
)

// Options controls how a handshake is turned into a destination.
type Options struct {
	// DefaultDestination replaces a missing X-Real-Host unless RequireExplicitHost is set.
	DefaultDestination  string
	RequireExplicitHost bool

	// DefaultPort is used for destinations without a port, except for CONNECT
	// handshakes which use ConnectPort.
	DefaultPort int
	ConnectPort int
}

// Result is what a handshake declared. It is never modified after Parse.
type Result struct {
	Method string
	Host   string
	Port   int

	// Explicit is true when the destination came from X-Real-Host.
	Explicit bool

	Secret    string
	HasSecret bool

	Split bool
}

// Destination returns the host:port to dial.
func (r Result) Destination() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Header returns the value following the first "<name>: " marker in buf, up to
// the next CRLF. A marker without a terminating CRLF counts as absent, and so
// does an empty value.
func Header(buf []byte, name string) (string, bool) {
	marker := []byte(name + ": ")
	i := bytes.Index(buf, marker)
	if i == -1 {
		return "", false
	}
	rest := buf[i+len(marker):]
	end := bytes.Index(rest, []byte("\r\n"))
	if end <= 0 {
		return "", false
	}
	return string(rest[:end]), true
}

// Parse extracts the destination, secret and split flag from a handshake block.
func Parse(buf []byte, opts Options) (Result, error) {
	res := Result{Method: method(buf)}

	dest, ok := Header(buf, HeaderRealHost)
	if ok {
		res.Explicit = true
	} else if !opts.RequireExplicitHost {
		dest = opts.DefaultDestination
	}
	if dest == "" {
		return res, ErrNoHost
	}

	defaultPort := opts.DefaultPort
	if res.Method == MethodConnect && opts.ConnectPort != 0 {
		defaultPort = opts.ConnectPort
	}
	host, port, err := SplitHostPort(dest, defaultPort)
	if err != nil {
		return res, err
	}
	res.Host, res.Port = host, port

	res.Secret, res.HasSecret = Header(buf, HeaderPass)
	_, res.Split = Header(buf, HeaderSplit)
	return res, nil
}

// Read performs the single handshake read from r into buf and parses it. When
// the client announced X-Split, one more read is issued and its bytes dropped.
// The returned slice aliases buf.
func Read(r io.Reader, buf []byte, opts Options) ([]byte, Result, error) {
	n, err := r.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, Result{}, err
	}
	raw := buf[:n]
	res, perr := Parse(raw, opts)
	if perr != nil && !errors.Is(perr, ErrNoHost) {
		return raw, res, perr
	}
	if res.Split {
		pad := make([]byte, len(buf))
		if _, err := r.Read(pad); err != nil {
			return raw, res, fmt.Errorf("read split padding: %w", err)
		}
	}
	return raw, res, perr
}

// SplitHostPort splits dest at its last colon. Without a colon the whole
// string is the host and defaultPort is used. Brackets around IPv6 hosts are
// removed.
func SplitHostPort(dest string, defaultPort int) (string, int, error) {
	host, port := dest, defaultPort
	if i := strings.LastIndex(dest, ":"); i != -1 {
		p, err := strconv.Atoi(dest[i+1:])
		if err != nil || p < 1 || p > 65535 {
			return "", 0, fmt.Errorf("%w: bad port in %q", ErrBadDestination, dest)
		}
		host, port = dest[:i], p
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", 0, fmt.Errorf("%w: empty host in %q", ErrBadDestination, dest)
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: no usable port for %q", ErrBadDestination, dest)
	}
	return host, port, nil
}

func method(buf []byte) string {
	line := buf
	if i := bytes.IndexAny(line, " \r\n"); i != -1 {
		line = line[:i]
	}
	return string(line)
}
