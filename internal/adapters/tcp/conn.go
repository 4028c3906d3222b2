// Package tcp carries the control channel over plain TCP: length-prefixed
// frames, plus the bare create/join request older peers send first.
package tcp

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/dkeye/meetrelay/internal/wire"
)

// Conn is a frame-oriented view of a TCP connection. Reads must come from a
// single goroutine; writes are serialised internally.
type Conn struct {
	nc       net.Conn
	r        *bufio.Reader
	maxFrame int

	first bool

	wmu      sync.Mutex
	rawReply bool
}

func NewConn(nc net.Conn, maxFrame int) *Conn {
	return &Conn{nc: nc, r: bufio.NewReader(nc), maxFrame: maxFrame, first: true}
}

// ReadFrame returns the next control payload. The very first message may
// arrive without a length prefix; in that case the next write also goes out
// without one.
func (c *Conn) ReadFrame() ([]byte, error) {
	if !c.first {
		return wire.ReadFrame(c.r, c.maxFrame)
	}
	c.first = false
	head, err := c.r.Peek(1)
	if err != nil {
		return nil, err
	}
	if !wire.IsUnframedStart(head[0]) {
		return wire.ReadFrame(c.r, c.maxFrame)
	}
	payload, err := wire.ReadUnframed(c.r)
	if err != nil {
		return nil, err
	}
	c.wmu.Lock()
	c.rawReply = true
	c.wmu.Unlock()
	return payload, nil
}

func (c *Conn) WriteFrame(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.rawReply {
		c.rawReply = false
		_, err := c.nc.Write(payload)
		return err
	}
	return wire.WriteFrame(c.nc, payload)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.nc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.nc.SetWriteDeadline(t) }
func (c *Conn) RemoteAddr() net.Addr               { return c.nc.RemoteAddr() }
func (c *Conn) Close() error                       { return c.nc.Close() }
