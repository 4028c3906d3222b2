package orch

import (
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

// RequestScreenShare with a target is a host asking that peer to present.
// Without a target the sender asks for the presenter slot itself.
func (o *Orchestrator) RequestScreenShare(id, target domain.PeerID) {
	if target != "" {
		_, s, ok := o.host(id, wire.TypeRequestScreenShare)
		if !ok {
			return
		}
		o.unicast(s, target, &wire.Message{Type: wire.TypeRequestScreenShare, ClientID: id})
		return
	}
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	granted, current := s.RequestPresent(id)
	if !granted {
		o.send(p, &wire.Message{Type: wire.TypeScreenShareDenied, CurrentPresenter: current})
		log.Debug().Str("module", "orch").Str("session", string(s.Code())).Str("peer", string(id)).Str("presenter", string(current)).Msg("presentation denied")
		return
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeScreenShareStarted, PresenterID: id, Username: p.Username}, id)
	log.Info().Str("module", "orch").Str("session", string(s.Code())).Str("peer", string(id)).Msg("presentation started")
}

// StopScreenShare ends the sender's presentation; a no-op for anybody else.
func (o *Orchestrator) StopScreenShare(id domain.PeerID) {
	_, s, ok := o.member(id)
	if !ok || !s.StopPresent(id) {
		return
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeScreenShareStopped, PresenterID: id}, "")
	log.Info().Str("module", "orch").Str("session", string(s.Code())).Str("peer", string(id)).Msg("presentation stopped")
}

// ScreenFrame relays a frame from the current presenter to everybody else.
// Frames from anyone else are dropped.
func (o *Orchestrator) ScreenFrame(id domain.PeerID, frameData string) {
	_, s, ok := o.member(id)
	if !ok {
		return
	}
	if cur := s.Presenter(); cur != id {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Str("presenter", string(cur)).Msg("screen frame from non-presenter dropped")
		return
	}
	if frameData == "" {
		log.Warn().Str("module", "orch").Str("session", string(s.Code())).Str("peer", string(id)).Msg("empty screen frame dropped")
		return
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeScreenFrame, PresenterID: id, FrameData: frameData}, id)
}
