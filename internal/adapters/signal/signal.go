// Package signal runs the control channel of one peer: handshake, read
// loop, dispatch into the orchestrator and a queued writer. It does not
// care whether frames travel over TCP or WebSocket.
package signal

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dkeye/meetrelay/internal/app/orch"
	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FrameConn is a message-oriented reliable connection. ReadFrame is only
// called from one goroutine at a time, and so is WriteFrame.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

type Options struct {
	SendQueue        int
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendQueue:        1024,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

type Controller struct {
	Orch    *orch.Orchestrator
	Opts    Options
	Limiter *CreateRateLimiter

	wg sync.WaitGroup
}

func NewController(o *orch.Orchestrator, opts Options, limiter *CreateRateLimiter) *Controller {
	def := DefaultOptions()
	if opts.SendQueue <= 0 {
		opts.SendQueue = def.SendQueue
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	return &Controller{Orch: o, Opts: opts, Limiter: limiter}
}

// Go runs Serve on its own goroutine and tracks it for Wait.
func (ctl *Controller) Go(ctx context.Context, fc FrameConn) {
	ctl.wg.Add(1)
	go func() {
		defer ctl.wg.Done()
		ctl.Serve(ctx, fc)
	}()
}

// Wait blocks until every connection started with Go has finished or
// timeout elapses. It reports whether they all finished.
func (ctl *Controller) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		ctl.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Conn is the queued writer side of a peer. The orchestrator only ever
// sees it through core.SignalConnection.
type Conn struct {
	fc    FrameConn
	codec wire.Codec
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(fc FrameConn, codec wire.Codec, queue int) *Conn {
	return &Conn{fc: fc, codec: codec, send: make(chan core.Frame, queue)}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.fc.Close()
	c.mu.Unlock()
}

// Serve owns fc until the peer goes away or ctx is cancelled.
func (ctl *Controller) Serve(ctx context.Context, fc FrameConn) {
	connID := uuid.NewString()
	remote := addrString(fc.RemoteAddr())
	log.Debug().Str("module", "signal").Str("conn", connID).Str("remote", remote).Msg("new control connection")

	// Closing the transport unblocks whichever read is pending; the read
	// loop then runs the usual cleanup.
	stop := context.AfterFunc(ctx, func() { _ = fc.Close() })
	defer stop()

	conn, id, ok := ctl.handshake(fc, connID)
	if !ok {
		return
	}
	go ctl.writePump(conn)
	ctl.readPump(id, conn)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
