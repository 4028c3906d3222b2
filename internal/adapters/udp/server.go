// Package udp owns the media socket: one listener and one receive loop
// shared by every peer.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const readBufferSize = 4 << 20

// Listen binds host:port for datagrams, moving forward one port at a time
// while the address is taken, at most span ports in total.
func Listen(host string, port, span int) (*net.UDPConn, error) {
	if span < 1 || port == 0 {
		span = 1
	}
	var lastErr error
	for p := port; p < port+span && p <= 65535; p++ {
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			return nil, fmt.Errorf("resolve udp address: %w", err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err == nil {
			if p != port {
				log.Warn().Str("module", "udp").Int("wanted", port).Int("bound", p).Msg("port busy, moved forward")
			}
			if err := conn.SetReadBuffer(readBufferSize); err != nil {
				log.Warn().Err(err).Str("module", "udp").Int("size", readBufferSize).Msg("failed to set read buffer size")
			}
			return conn, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free udp port in %d..%d: %w", port, port+span-1, lastErr)
}

// Handler gets every datagram. b is reused once the handler returns.
type Handler func(from *net.UDPAddr, b []byte)

type Server struct {
	conn   *net.UDPConn
	poll   time.Duration
	handle Handler
}

func NewServer(conn *net.UDPConn, poll time.Duration, h Handler) *Server {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Server{conn: conn, poll: poll, handle: h}
}

// Run is the receive loop. The read deadline is refreshed every poll
// interval so cancellation is noticed without closing the socket first.
func (s *Server) Run(ctx context.Context) error {
	defer s.conn.Close()
	buf := make([]byte, 65535)
	log.Info().Str("module", "udp").Str("addr", s.conn.LocalAddr().String()).Msg("media receive loop started")

	for {
		if ctx.Err() != nil {
			log.Info().Str("module", "udp").Msg("media receive loop stopping")
			return nil
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// ICMP port-unreachable from a departed peer surfaces here on
			// some platforms; it must not stop the loop.
			log.Debug().Err(err).Str("module", "udp").Msg("read failed")
			continue
		}
		s.handle(from, buf[:n])
	}
}
