// Package sshtest provides an in-process SSH server to use as a relay
// destination in tests.
//
// The server accepts one user/password pair, discards global requests, and
// serves "direct-tcpip" channels (port forwarding) by dialing the requested
// address, which is enough to push real SSH traffic through a tunnel and
// check that it arrives intact.
//
// Usage:
//
//	srv, err := sshtest.NewServer("user", "pass")
//	if err != nil { ... }
//	defer srv.Close()
//	// dial srv.Addr() directly or through a relay
package sshtest

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Version is the identification string the server sends.
const Version = "SSH-2.0-ssh-relay-test"

// Server is a running in-process SSH server listening on the loopback interface.
type Server struct {
	ln      net.Listener
	config  *ssh.ServerConfig
	hostKey ssh.PublicKey

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1 with a freshly generated host key.
func NewServer(user, password string) (*Server, error) {
	config, signer, err := NewConfig(user, password)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %v", err)
	}
	s := &Server{
		ln:      ln,
		config:  config,
		hostKey: signer.PublicKey(),
		conns:   make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey { return s.hostKey }

// Close stops the listener, closes every connection and waits for their handlers.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			HandleConn(conn, s.config)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// HandleConn runs the SSH handshake on conn and serves its channels until the
// client disconnects.
func HandleConn(conn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	HandleChannels(chans)
	sshConn.Close()
}
