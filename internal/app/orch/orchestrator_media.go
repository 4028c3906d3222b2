package orch

import (
	"net"

	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

func kindName(k byte) string {
	switch k {
	case wire.KindAudio:
		return "audio"
	case wire.KindVideo:
		return "video"
	case wire.KindInit:
		return "init"
	}
	return "unknown"
}

// OnDatagram handles one packet from the shared media socket. It learns
// the sender's media address, then relays video or mixes audio. Nothing
// here fails the caller: bad packets are counted and dropped.
func (o *Orchestrator) OnDatagram(from *net.UDPAddr, b []byte) {
	d, err := wire.ParseDatagram(b)
	if err != nil {
		o.drop("malformed")
		log.Debug().Str("module", "orch.media").Str("remote", from.String()).Err(err).Msg("malformed datagram dropped")
		return
	}
	now := o.now()
	p, ok := o.Registry.BindMedia(d.Sender, from, now, o.Media.RebindAfter)
	if !ok {
		o.drop("unknown_sender")
		log.Debug().Str("module", "orch.media").Str("peer", string(d.Sender)).Str("remote", from.String()).Msg("datagram from unknown sender dropped")
		return
	}
	s, ok := o.Sessions.Get(p.Code)
	if !ok {
		o.drop("no_session")
		return
	}
	o.Metrics.RecordDatagram(kindName(d.Kind))

	switch d.Kind {
	case wire.KindInit:
		o.stats.inits.Add(1)
	case wire.KindVideo:
		o.stats.video.Add(1)
		o.relayVideo(s, d)
	case wire.KindAudio:
		o.stats.audio.Add(1)
		o.mixAudio(s, d)
	}
}

func (o *Orchestrator) drop(reason string) {
	o.stats.dropped.Add(1)
	o.Metrics.RecordDatagramDropped(reason)
}

func (o *Orchestrator) relayVideo(s *core.Session, d wire.Datagram) {
	if o.Relay == nil || len(d.Payload) == 0 {
		return
	}
	targets := o.Registry.MediaTargets(s.Others(d.Sender))
	for _, res := range o.Relay.Forward(wire.KindVideo, d.Sender, d.Payload, targets) {
		o.Metrics.RecordMediaSent("video", res.Err)
	}
}

// mixAudio buffers the packet, then sends every other participant with a
// media address its own mix of what it may hear, sized to this packet.
func (o *Orchestrator) mixAudio(s *core.Session, d wire.Datagram) {
	samples, err := wire.DecodePCM(d.Payload)
	if err != nil {
		o.drop("bad_pcm")
		log.Debug().Str("module", "orch.media").Str("peer", string(d.Sender)).Err(err).Msg("audio dropped")
		return
	}
	now := o.now()
	s.StoreAudio(d.Sender, samples, now)
	if s.Len() < 2 || o.Relay == nil {
		return
	}
	targets := o.Registry.MediaTargets(s.Others(d.Sender))
	window := o.Media.MixWindow
	results := o.Relay.SendMixes(len(samples), targets, func(recipient domain.PeerID) [][]int16 {
		srcs := s.MixSources(recipient, now, window)
		if len(srcs) > 0 {
			o.Metrics.RecordMix(len(srcs))
		}
		return srcs
	})
	for _, res := range results {
		o.Metrics.RecordMediaSent("audio", res.Err)
		if res.Err == nil {
			o.stats.mixes.Add(1)
		}
	}
}

// SweepAudio drops stale audio buffers in every session.
func (o *Orchestrator) SweepAudio() int {
	now := o.now()
	n := 0
	for _, s := range o.Sessions.All() {
		n += s.SweepAudio(now, o.Media.BufferTTL)
	}
	o.Metrics.RecordSwept(n)
	return n
}
