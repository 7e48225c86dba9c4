package handshake

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Request describes a client handshake.
type Request struct {
	// Method defaults to GET.
	Method string
	// Path defaults to "/".
	Path string
	// Host is sent as the Host header when set.
	Host string

	RealHost string
	Pass     string
	Split    bool

	// Upgrade adds WebSocket upgrade headers so the block passes
	// middleboxes that look for them.
	Upgrade bool
}

// String renders the request as a handshake block terminated by an empty line.
func (r Request) String() string {
	method := r.Method
	if method == "" {
		method = "GET"
	}
	path := r.Path
	if path == "" {
		path = "/"
		if method == MethodConnect && r.RealHost != "" {
			path = r.RealHost
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	if r.Host != "" {
		fmt.Fprintf(&b, "Host: %s\r\n", r.Host)
	}
	if r.RealHost != "" {
		fmt.Fprintf(&b, "%s: %s\r\n", HeaderRealHost, r.RealHost)
	}
	if r.Pass != "" {
		fmt.Fprintf(&b, "%s: %s\r\n", HeaderPass, r.Pass)
	}
	if r.Split {
		fmt.Fprintf(&b, "%s: 1\r\n", HeaderSplit)
	}
	if r.Upgrade {
		b.WriteString("Upgrade: websocket\r\nConnection: Upgrade\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

// Status is the status line a relay answered a handshake with.
type Status struct {
	Code   int
	Phrase string
}

// OK reports whether the relay accepted the tunnel.
func (s Status) OK() bool {
	return s.Code >= 100 && s.Code < 300
}

// ReadStatus reads the relay's status line and the empty line ending the
// response. It never reads past the response, so the reader can be handed to
// the tunnelled protocol afterwards.
func ReadStatus(r *bufio.Reader) (Status, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return Status{}, fmt.Errorf("read status line: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return Status{}, fmt.Errorf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return Status{}, fmt.Errorf("malformed status code in %q", line)
	}
	st := Status{Code: code}
	if len(parts) == 3 {
		st.Phrase = strings.TrimSpace(parts[2])
	}
	for {
		l, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && l == "" {
				return st, nil
			}
			return st, fmt.Errorf("read response headers: %w", err)
		}
		if strings.TrimRight(l, "\r\n") == "" {
			return st, nil
		}
	}
}
