package sfu

import (
	"net"

	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

//go:generate mockgen -source=relay.go -destination=mock_packet_writer_test.go -package=sfu

// PacketWriter is the shared datagram socket.
type PacketWriter interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Target is a recipient with a learned media address.
type Target struct {
	ID   domain.PeerID
	Addr net.Addr
}

// Relay fans datagrams out over one socket. Every send is independent:
// a failing recipient never stops delivery to the rest.
type Relay struct {
	w PacketWriter
}

func NewRelay(w PacketWriter) *Relay {
	return &Relay{w: w}
}

// Forward re-wraps a video payload with its sender header and sends it to
// every target.
func (r *Relay) Forward(kind byte, sender domain.PeerID, payload []byte, targets []Target) []core.Delivery {
	if len(targets) == 0 {
		return nil
	}
	pkt, err := wire.AppendDatagram(nil, kind, sender, payload)
	if err != nil {
		log.Debug().Str("module", "sfu").Str("peer", string(sender)).Err(err).Msg("forward dropped")
		return failAll(targets, err)
	}
	out := make([]core.Delivery, 0, len(targets))
	for _, t := range targets {
		out = append(out, core.Delivery{Peer: t.ID, Err: r.send(pkt, t)})
	}
	return out
}

// MixSource yields the audio a recipient may hear right now.
type MixSource func(recipient domain.PeerID) [][]int16

// SendMixes builds one personalised mix per target, n samples long, and
// sends it. Targets with nothing to hear are skipped and not reported.
func (r *Relay) SendMixes(n int, targets []Target, sources MixSource) []core.Delivery {
	var out []core.Delivery
	for _, t := range targets {
		srcs := sources(t.ID)
		if len(srcs) == 0 {
			continue
		}
		pkt, err := wire.AppendMixedAudio(nil, Mix(srcs, n))
		if err == nil {
			err = r.send(pkt, t)
		}
		out = append(out, core.Delivery{Peer: t.ID, Err: err})
	}
	return out
}

func (r *Relay) send(pkt []byte, t Target) error {
	if _, err := r.w.WriteTo(pkt, t.Addr); err != nil {
		log.Debug().Str("module", "sfu").Str("peer", string(t.ID)).Err(err).Msg("datagram write failed")
		return err
	}
	return nil
}

func failAll(targets []Target, err error) []core.Delivery {
	out := make([]core.Delivery, len(targets))
	for i, t := range targets {
		out[i] = core.Delivery{Peer: t.ID, Err: err}
	}
	return out
}
