package orch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/meetrelay/internal/app"
	"github.com/dkeye/meetrelay/internal/app/sfu"
	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/journal"
	"github.com/dkeye/meetrelay/internal/metrics"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

// MediaConfig tunes the media relay.
type MediaConfig struct {
	MixWindow   time.Duration
	BufferTTL   time.Duration
	RebindAfter time.Duration
}

func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		MixWindow: 300 * time.Millisecond,
		BufferTTL: 500 * time.Millisecond,
	}
}

// Orchestrator applies control messages and datagrams to the session and
// connection tables and performs the resulting deliveries.
type Orchestrator struct {
	Sessions *app.SessionManager
	Registry *app.Registry
	Policy   app.Policy
	Relay    *sfu.Relay
	Journal  *journal.Journal
	Metrics  *metrics.Metrics
	Media    MediaConfig
	Now      func() time.Time

	stats counters
}

type counters struct {
	messages     atomic.Uint64
	audio        atomic.Uint64
	video        atomic.Uint64
	inits        atomic.Uint64
	dropped      atomic.Uint64
	mixes        atomic.Uint64
	sendFailures atomic.Uint64
}

// Statistics is a point-in-time view of the relay counters.
type Statistics struct {
	Sessions       int    `json:"sessions"`
	Peers          int    `json:"peers"`
	Messages       uint64 `json:"messages"`
	AudioPackets   uint64 `json:"audio_packets"`
	VideoPackets   uint64 `json:"video_packets"`
	InitPackets    uint64 `json:"init_packets"`
	DroppedPackets uint64 `json:"dropped_packets"`
	MixesSent      uint64 `json:"mixes_sent"`
	SendFailures   uint64 `json:"send_failures"`
}

func (o *Orchestrator) Stats() Statistics {
	return Statistics{
		Sessions:       o.Sessions.Len(),
		Peers:          o.Registry.Len(),
		Messages:       o.stats.messages.Load(),
		AudioPackets:   o.stats.audio.Load(),
		VideoPackets:   o.stats.video.Load(),
		InitPackets:    o.stats.inits.Load(),
		DroppedPackets: o.stats.dropped.Load(),
		MixesSent:      o.stats.mixes.Load(),
		SendFailures:   o.stats.sendFailures.Load(),
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// member resolves a connected peer and its session.
func (o *Orchestrator) member(id domain.PeerID) (app.Peer, *core.Session, bool) {
	p, ok := o.Registry.Get(id)
	if !ok {
		return app.Peer{}, nil, false
	}
	s, ok := o.Sessions.Get(p.Code)
	if !ok || !s.Has(id) {
		return app.Peer{}, nil, false
	}
	return p, s, true
}

func encode(p app.Peer, m *wire.Message) (core.Frame, error) {
	c := p.Codec
	if c == nil {
		c = wire.JSON
	}
	b, err := c.Marshal(m)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

// send queues m for p. Failures are reported, never returned to callers as
// fatal: the peer's own read loop notices a dead connection.
func (o *Orchestrator) send(p app.Peer, m *wire.Message) core.Delivery {
	frame, err := encode(p, m)
	if err == nil {
		err = p.Conn.TrySend(frame)
	}
	if err != nil {
		o.onSendFailure(p, m.Type, err)
	}
	return core.Delivery{Peer: p.ID, Err: err}
}

func (o *Orchestrator) onSendFailure(p app.Peer, msgType string, err error) {
	o.stats.sendFailures.Add(1)
	action := "none"
	if errors.Is(err, core.ErrBackpressure) && o.Policy != nil {
		switch o.Policy.OnBackPressure(p) {
		case app.KickMember:
			action = "kick"
			p.Conn.Close()
		case app.DropFrame:
			action = "drop"
		}
	}
	o.Metrics.RecordSendFailure(action)
	log.Debug().Str("module", "orch").Str("peer", string(p.ID)).Str("type", msgType).Str("action", action).Err(err).Msg("send failed")
}

// broadcast delivers m to every participant of s except exclude (empty
// excludes nobody). Each target is attempted independently.
func (o *Orchestrator) broadcast(s *core.Session, m *wire.Message, exclude domain.PeerID) []core.Delivery {
	peers := o.Registry.Lookup(s.Others(exclude))
	out := make([]core.Delivery, 0, len(peers))
	frames := make(map[string]core.Frame, 2)
	for _, p := range peers {
		c := p.Codec
		if c == nil {
			c = wire.JSON
		}
		frame, ok := frames[c.Name()]
		if !ok {
			var err error
			if frame, err = encode(p, m); err != nil {
				o.onSendFailure(p, m.Type, err)
				out = append(out, core.Delivery{Peer: p.ID, Err: err})
				continue
			}
			frames[c.Name()] = frame
		}
		err := p.Conn.TrySend(frame)
		if err != nil {
			o.onSendFailure(p, m.Type, err)
		}
		out = append(out, core.Delivery{Peer: p.ID, Err: err})
	}
	if failed := core.Failed(out); len(failed) > 0 {
		log.Debug().Str("module", "orch").Str("session", string(s.Code())).Str("type", m.Type).Int("sent_to", len(out)-len(failed)).Int("failed", len(failed)).Msg("broadcast result")
	}
	return out
}

// unicast delivers m to target if it is connected to session s. Unknown
// targets are a silent no-op.
func (o *Orchestrator) unicast(s *core.Session, target domain.PeerID, m *wire.Message) (core.Delivery, bool) {
	if target == "" || !s.Has(target) {
		return core.Delivery{}, false
	}
	p, ok := o.Registry.Get(target)
	if !ok {
		return core.Delivery{}, false
	}
	return o.send(p, m), true
}

func (o *Orchestrator) record(e journal.Entry) {
	if o.Journal == nil {
		return
	}
	if e.At.IsZero() {
		e.At = o.now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Journal.Record(ctx, e); err != nil {
		log.Warn().Str("module", "orch").Str("session", string(e.Session)).Err(err).Msg("journal write failed")
	}
}

func (o *Orchestrator) updateGauges() {
	o.Metrics.SetActive(o.Sessions.Len(), o.Registry.Len())
}
