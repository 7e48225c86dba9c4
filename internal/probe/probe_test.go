package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/ssh"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
	"github.com/ayanrajpoot10/ssh-relay/internal/handshake"
	"github.com/ayanrajpoot10/ssh-relay/internal/sshtest"
	"github.com/ayanrajpoot10/ssh-relay/internal/tunnel"
)

func setup(t *testing.T, secret string) (relay string, srv *sshtest.Server) {
	t.Helper()
	srv, err := sshtest.NewServer("carol", "pw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	cfg := config.LoopbackProfile("127.0.0.1")
	cfg.Port = 0
	cfg.Secret = secret
	l, err := tunnel.NewListener(cfg, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Stop)
	return l.Addr().String(), srv
}

func TestRunAuthenticated(t *testing.T) {
	relay, srv := setup(t, "")
	res, err := Run(context.Background(), Options{
		Relay:    relay,
		Request:  handshake.Request{RealHost: srv.Addr(), Upgrade: true},
		User:     "carol",
		Password: "pw",
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status.Code != 101 || !res.Authenticated {
		t.Errorf("result = %+v", res)
	}
	if res.ServerVersion != sshtest.Version {
		t.Errorf("server version = %q", res.ServerVersion)
	}
	if res.Fingerprint != ssh.FingerprintSHA256(srv.HostKey()) {
		t.Errorf("fingerprint = %q", res.Fingerprint)
	}
}

func TestRunKeyExchangeOnlyWithSplit(t *testing.T) {
	relay, srv := setup(t, "s3cret")
	res, err := Run(context.Background(), Options{
		Relay:   relay,
		Request: handshake.Request{RealHost: srv.Addr(), Pass: "s3cret", Split: true},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Authenticated {
		t.Error("probe without user reported authentication")
	}
	if res.HostKeyType != srv.HostKey().Type() || res.Fingerprint == "" {
		t.Errorf("host key = %q %q", res.HostKeyType, res.Fingerprint)
	}
}

func TestRunRefused(t *testing.T) {
	relay, _ := setup(t, "s3cret")
	tests := []struct {
		name string
		req  handshake.Request
		code int
	}{
		{"wrong secret", handshake.Request{RealHost: "127.0.0.1:22", Pass: "nope"}, 400},
		{"forbidden", handshake.Request{RealHost: "192.0.2.1:22", Pass: "s3cret"}, 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(context.Background(), Options{Relay: relay, Request: tt.req, Timeout: 5 * time.Second})
			if !errors.Is(err, ErrRefused) {
				t.Fatalf("Run = %v, want ErrRefused", err)
			}
			if res.Status.Code != tt.code {
				t.Errorf("status = %+v, want %d", res.Status, tt.code)
			}
		})
	}
}

func TestRunWrongPassword(t *testing.T) {
	relay, srv := setup(t, "")
	_, err := Run(context.Background(), Options{
		Relay:    relay,
		Request:  handshake.Request{RealHost: srv.Addr()},
		User:     "carol",
		Password: "wrong",
		Timeout:  10 * time.Second,
	})
	if err == nil {
		t.Fatal("probe with a wrong password succeeded")
	}
}
