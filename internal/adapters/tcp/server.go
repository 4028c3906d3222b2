package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Listen binds host:port, moving forward one port at a time while the
// address is taken, at most span ports in total.
func Listen(host string, port, span int) (net.Listener, error) {
	if span < 1 || port == 0 {
		span = 1
	}
	var lastErr error
	for p := port; p < port+span && p <= 65535; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			if p != port {
				log.Warn().Str("module", "tcp").Int("wanted", port).Int("bound", p).Msg("port busy, moved forward")
			}
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free tcp port in %d..%d: %w", port, port+span-1, lastErr)
}

// Handler owns a connection until it returns.
type Handler func(ctx context.Context, c *Conn)

type Server struct {
	ln       net.Listener
	maxFrame int
	handle   Handler
	wg       sync.WaitGroup
}

func NewServer(ln net.Listener, maxFrame int, h Handler) *Server {
	return &Server{ln: ln, maxFrame: maxFrame, handle: h}
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts until ctx is cancelled, then closes the listener and waits
// for every handler to return.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Str("module", "tcp").Err(err).Msg("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer nc.Close()
			s.handle(ctx, NewConn(nc, s.maxFrame))
		}()
	}
}
