package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ayanrajpoot10/ssh-relay/internal/auth"
	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// countingDialer records how often a session tried to reach a destination.
type countingDialer struct {
	calls atomic.Int32
	err   error
	next  NetTransport
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.next.DialContext(ctx, network, address)
}

// handleOverPipe runs a session on one end of a pipe, sends handshake from the
// other end and returns everything the client received plus Handle's error.
func handleOverPipe(t *testing.T, cfg config.Listener, dialer *countingDialer, handshake string) (string, error) {
	t.Helper()
	cfg = cfg.WithDefaults()
	a, err := auth.New(cfg.Secret)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	server, client := net.Pipe()
	defer client.Close()

	s := NewSession(server, &cfg, a, dialer, zaptest.NewLogger(t))
	errc := make(chan error, 1)
	go func() { errc <- s.Handle() }()

	client.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(client, handshake); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	got, _ := io.ReadAll(client)
	err = <-errc
	if s.State() != StateClosed {
		t.Errorf("state = %v after Handle returned", s.State())
	}
	return string(got), err
}

func TestSessionRefusals(t *testing.T) {
	loop := config.LoopbackProfile("127.0.0.1")
	locked := loop
	locked.Secret = "s3cret"
	strict := loop
	strict.RequireExplicitHost = true

	tests := []struct {
		name      string
		cfg       config.Listener
		handshake string
		response  string
		err       error
	}{
		{
			name:      "wrong secret",
			cfg:       locked,
			handshake: "GET / HTTP/1.1\r\nX-Real-Host: 127.0.0.1:22\r\nX-Pass: nope\r\n\r\n",
			response:  ResponseWrongPass,
			err:       ErrAuth,
		},
		{
			name:      "missing secret",
			cfg:       locked,
			handshake: "GET / HTTP/1.1\r\nX-Real-Host: 127.0.0.1:22\r\n\r\n",
			response:  ResponseWrongPass,
			err:       ErrAuth,
		},
		{
			name:      "correct secret does not lift policy",
			cfg:       locked,
			handshake: "GET / HTTP/1.1\r\nX-Real-Host: 10.9.8.7:22\r\nX-Pass: s3cret\r\n\r\n",
			response:  ResponseForbidden,
			err:       ErrPolicy,
		},
		{
			name:      "forbidden destination",
			cfg:       loop,
			handshake: "GET / HTTP/1.1\r\nX-Real-Host: 10.9.8.7:22\r\n\r\n",
			response:  ResponseForbidden,
			err:       ErrPolicy,
		},
		{
			name:      "no explicit host",
			cfg:       strict,
			handshake: "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n",
			response:  ResponseNoHost,
			err:       ErrHandshake,
		},
		{
			name:      "bad port closes silently",
			cfg:       loop,
			handshake: "GET / HTTP/1.1\r\nX-Real-Host: 127.0.0.1:ssh\r\n\r\n",
			response:  "",
			err:       ErrHandshake,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &countingDialer{}
			got, err := handleOverPipe(t, tt.cfg, dialer, tt.handshake)
			if got != tt.response {
				t.Errorf("response = %q, want %q", got, tt.response)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Handle error = %v, want %v", err, tt.err)
			}
			if n := dialer.calls.Load(); n != 0 {
				t.Errorf("destination dialed %d times", n)
			}
		})
	}
}

func TestSessionDialFailureIsSilent(t *testing.T) {
	dialer := &countingDialer{err: errors.New("connection refused")}
	got, err := handleOverPipe(t, config.LoopbackProfile("127.0.0.1"), dialer,
		"GET / HTTP/1.1\r\nX-Real-Host: 127.0.0.1:9\r\n\r\n")
	if got != "" {
		t.Errorf("client received %q", got)
	}
	if !errors.Is(err, ErrDial) {
		t.Errorf("Handle error = %v, want ErrDial", err)
	}
	if dialer.calls.Load() != 1 {
		t.Errorf("dial attempts = %d, want 1", dialer.calls.Load())
	}
}

func TestSessionSecretGrantsAnyDestination(t *testing.T) {
	cfg := config.LoopbackProfile("127.0.0.1")
	cfg.Secret = "s3cret"
	cfg.SecretGrantsAnyDestination = true
	dialer := &countingDialer{err: errors.New("unreachable")}

	_, err := handleOverPipe(t, cfg, dialer, "GET / HTTP/1.1\r\nX-Real-Host: 10.9.8.7:22\r\nX-Pass: s3cret\r\n\r\n")
	if !errors.Is(err, ErrDial) {
		t.Errorf("Handle error = %v, want ErrDial", err)
	}
	if dialer.calls.Load() != 1 {
		t.Error("secret holder was not allowed to dial a non-loopback destination")
	}
}

func TestSessionCloseCancelsDial(t *testing.T) {
	cfg := config.LoopbackProfile("127.0.0.1").WithDefaults()
	server, client := net.Pipe()
	defer client.Close()

	dialing := make(chan struct{})
	dialer := blockingDialer(dialing)
	s := NewSession(server, &cfg, nil, dialer, zaptest.NewLogger(t))
	errc := make(chan error, 1)
	go func() { errc <- s.Handle() }()

	go io.WriteString(client, "GET / HTTP/1.1\r\nX-Real-Host: 127.0.0.1:22\r\n\r\n")
	<-dialing
	s.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrDial) {
			t.Errorf("Handle error = %v, want ErrDial", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not interrupt the dial")
	}
}

type blockingDialer chan struct{}

func (d blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	close(d)
	<-ctx.Done()
	return nil, ctx.Err()
}
