package tunnel

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ayanrajpoot10/ssh-relay/internal/handshake"
	"github.com/ayanrajpoot10/ssh-relay/internal/sshtest"
)

// bufferedConn hands bytes the status reader already buffered to the SSH client.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func TestSSHThroughTunnel(t *testing.T) {
	srv, err := sshtest.NewServer("alice", "wonderland")
	if err != nil {
		t.Fatalf("sshtest.NewServer: %v", err)
	}
	defer srv.Close()
	echo := echoServer(t)

	cfg := testConfig()
	cfg.Secret = "s3cret"
	l := startListener(t, cfg)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	req := handshake.Request{Host: "cdn.example.com", RealHost: srv.Addr(), Pass: "s3cret", Upgrade: true}
	if _, err := io.WriteString(conn, req.String()); err != nil {
		t.Fatal(err)
	}
	br := bufio.NewReader(conn)
	st, err := handshake.ReadStatus(br)
	if err != nil || st.Code != 101 {
		t.Fatalf("status = %+v, %v", st, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(bufferedConn{conn, br}, srv.Addr(), &ssh.ClientConfig{
		User:            "alice",
		Auth:            []ssh.AuthMethod{ssh.Password("wonderland")},
		HostKeyCallback: ssh.FixedHostKey(srv.HostKey()),
	})
	if err != nil {
		t.Fatalf("ssh handshake through tunnel: %v", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()
	if v := string(client.ServerVersion()); v != sshtest.Version {
		t.Errorf("server version = %q", v)
	}

	fwd, err := client.Dial("tcp", echo)
	if err != nil {
		t.Fatalf("direct-tcpip: %v", err)
	}
	defer fwd.Close()
	msg := "through the relay and back"
	if _, err := io.WriteString(fwd, msg); err != nil {
		t.Fatal(err)
	}
	b := make([]byte, len(msg))
	if _, err := io.ReadFull(fwd, b); err != nil || string(b) != msg {
		t.Errorf("forwarded echo = %q, %v", b, err)
	}
}
