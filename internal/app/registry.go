package app

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dkeye/meetrelay/internal/app/sfu"
	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

var ErrDuplicatePeer = errors.New("peer already connected")

// Peer is one registered reliable connection. Registry methods hand out
// copies; MediaAddr is replaced, never mutated.
type Peer struct {
	ID       domain.PeerID
	ConnID   string
	Username string
	Code     domain.SessionCode
	IsHost   bool
	Remote   string

	Conn  core.SignalConnection
	Codec wire.Codec

	MediaAddr *net.UDPAddr
	MediaSeen time.Time

	JoinedAt     time.Time
	LastActivity time.Time
}

// Registry is the connection table: peer id -> connection handle and
// learned media address.
type Registry struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*Peer
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[domain.PeerID]*Peer)}
}

func (r *Registry) Register(p Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.ID]; ok {
		return ErrDuplicatePeer
	}
	r.peers[p.ID] = &p
	log.Info().Str("module", "app.registry").Str("peer", string(p.ID)).Str("conn_id", p.ConnID).Str("session", string(p.Code)).Msg("registered connection")
	return nil
}

// Unregister removes the peer. The second result is false if it was
// already gone, which makes disconnect cleanup idempotent.
func (r *Registry) Unregister(id domain.PeerID) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("unregistered connection")
	return *p, true
}

func (r *Registry) Get(id domain.PeerID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

func (r *Registry) SetHost(id domain.PeerID, host bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.IsHost = host
	}
}

func (r *Registry) Touch(id domain.PeerID, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.LastActivity = now
	}
}

// BindMedia records addr as the peer's media address if none is bound yet.
// With rebindAfter > 0 a different source may take over once the bound
// address has been silent for longer than rebindAfter. Unknown ids are
// never bound.
func (r *Registry) BindMedia(id domain.PeerID, addr *net.UDPAddr, now time.Time, rebindAfter time.Duration) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	switch {
	case p.MediaAddr == nil:
		p.MediaAddr = cloneUDPAddr(addr)
		p.MediaSeen = now
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("addr", addr.String()).Msg("bound media address")
	case sameUDPAddr(p.MediaAddr, addr):
		p.MediaSeen = now
	case rebindAfter > 0 && now.Sub(p.MediaSeen) > rebindAfter:
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("from", p.MediaAddr.String()).Str("to", addr.String()).Msg("rebound media address")
		p.MediaAddr = cloneUDPAddr(addr)
		p.MediaSeen = now
	}
	p.LastActivity = now
	return *p, true
}

// MediaTargets returns the ids that have a bound media address, in the
// given order.
func (r *Registry) MediaTargets(ids []domain.PeerID) []sfu.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sfu.Target, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.peers[id]; ok && p.MediaAddr != nil {
			out = append(out, sfu.Target{ID: id, Addr: p.MediaAddr})
		}
	}
	return out
}

// Lookup returns the registered peers among ids, in the given order.
func (r *Registry) Lookup(ids []domain.PeerID) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.peers[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func cloneUDPAddr(a *net.UDPAddr) *net.UDPAddr {
	c := *a
	c.IP = append(net.IP(nil), a.IP...)
	return &c
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP) && a.Zone == b.Zone
}
