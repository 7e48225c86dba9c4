package tunnel

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
)

// Reason tells why a relay ended.
type Reason string

const (
	ReasonClientClosed Reason = "client closed"
	ReasonTargetClosed Reason = "target closed"
	ReasonIdle         Reason = "idle"
	ReasonError        Reason = "error"
)

// RelayStats summarizes a finished relay.
type RelayStats struct {
	// Up counts bytes moved client to target, Down target to client.
	Up, Down int64
	Reason   Reason
	// Err is set when Reason is ReasonError.
	Err      error
	Duration time.Duration
}

// Relay pumps bytes between a client and its destination. Each direction
// reads with a PollInterval deadline; once IdleCycles consecutive cycles pass
// without data on either leg the relay gives up.
type Relay struct {
	PollInterval time.Duration
	IdleCycles   int
}

// NewRelay returns a Relay using cfg's poll interval and idle cycles.
func NewRelay(cfg config.Listener) Relay {
	return Relay{PollInterval: cfg.PollInterval, IdleCycles: cfg.IdleCycles}
}

type relayRun struct {
	Relay
	client, target net.Conn

	lastActive atomic.Int64
	up, down   atomic.Int64

	once   sync.Once
	done   chan struct{}
	reason Reason
	err    error
}

// Run relays until a peer closes, a read or write fails, or the idle budget
// runs out. It does not close either connection; it only interrupts pending
// I/O on both so that both pumps have returned when Run does.
func (r Relay) Run(client, target net.Conn) RelayStats {
	if r.PollInterval <= 0 {
		r.PollInterval = config.DefaultPollInterval
	}
	if r.IdleCycles <= 0 {
		r.IdleCycles = config.DefaultIdleCycles
	}
	run := &relayRun{Relay: r, client: client, target: target, done: make(chan struct{})}
	run.touch()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		run.pump(target, client, &run.up, ReasonClientClosed)
	}()
	go func() {
		defer wg.Done()
		run.pump(client, target, &run.down, ReasonTargetClosed)
	}()
	wg.Wait()

	// Deadlines were only a wake-up mechanism; leave the conns clean for Close.
	client.SetDeadline(time.Time{})
	target.SetDeadline(time.Time{})

	return RelayStats{
		Up:       run.up.Load(),
		Down:     run.down.Load(),
		Reason:   run.reason,
		Err:      run.err,
		Duration: time.Since(start),
	}
}

func (r *relayRun) budget() time.Duration {
	return r.PollInterval * time.Duration(r.IdleCycles)
}

func (r *relayRun) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

func (r *relayRun) idle() bool {
	return time.Since(time.Unix(0, r.lastActive.Load())) >= r.budget()
}

// finish records the first termination cause and wakes the other pump.
func (r *relayRun) finish(reason Reason, err error) {
	r.once.Do(func() {
		r.reason, r.err = reason, err
		close(r.done)
		now := time.Now()
		r.client.SetDeadline(now)
		r.target.SetDeadline(now)
	})
}

func (r *relayRun) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// pump copies src to dst one chunk at a time; a chunk is written completely
// before the next read from src.
func (r *relayRun) pump(dst, src net.Conn, counter *atomic.Int64, eofReason Reason) {
	bufp := getBuffer()
	defer putBuffer(bufp)
	buf := *bufp

	for !r.stopped() {
		src.SetReadDeadline(time.Now().Add(r.PollInterval))
		n, err := src.Read(buf)
		if n > 0 {
			r.touch()
			dst.SetWriteDeadline(time.Now().Add(r.budget()))
			if werr := writeFull(dst, buf[:n]); werr != nil {
				r.finish(ReasonError, werr)
				return
			}
			counter.Add(int64(n))
		}
		if err == nil {
			continue
		}
		switch {
		case r.stopped():
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
			if r.idle() {
				r.finish(ReasonIdle, nil)
				return
			}
		case errors.Is(err, io.EOF):
			r.finish(eofReason, nil)
			return
		default:
			r.finish(ReasonError, err)
			return
		}
	}
}

// writeFull writes all of p, retrying short writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
