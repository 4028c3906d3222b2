package orch

import (
	"github.com/dkeye/meetrelay/internal/app"
	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

// Touch records control-channel activity for id.
func (o *Orchestrator) Touch(id domain.PeerID, msgType string) {
	o.stats.messages.Add(1)
	o.Metrics.RecordMessage(msgType)
	o.Registry.Touch(id, o.now())
}

func (o *Orchestrator) Chat(id domain.PeerID, text string) {
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeChat, ClientID: id, Username: p.Username, Message: text}, id)
}

// VideoState relays a camera on/off change. Explicitly turning video off
// while presenting also ends the presentation; a missing state does not.
func (o *Orchestrator) VideoState(id domain.PeerID, state any) {
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	m := wire.Message{State: state}
	if state != nil && !m.StateOn() && s.StopPresent(id) {
		o.broadcast(s, &wire.Message{Type: wire.TypeScreenShareStopped, PresenterID: id}, "")
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeParticipantVideoState, ClientID: id, Username: p.Username, State: state}, id)
}

// RaiseHand broadcasts the hand state to everyone, the sender included, and
// refreshes the host's queue when it changed.
func (o *Orchestrator) RaiseHand(id domain.PeerID, raised bool) {
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	changed := s.RaiseHand(id, raised)
	o.broadcast(s, &wire.Message{Type: wire.TypeParticipantHandState, ClientID: id, Username: p.Username, State: raised}, "")
	if changed {
		o.sendHandQueue(s)
	}
}

func (o *Orchestrator) sendHandQueue(s *core.Session) {
	o.unicast(s, s.Host(), &wire.Message{Type: wire.TypeHandQueue, Participants: s.HandQueue()})
}

func (o *Orchestrator) Emoji(id domain.PeerID, emoji string) {
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeEmojiReaction, ClientID: id, Username: p.Username, Emoji: emoji}, "")
}

// host resolves id only if it is the host of its session. Anything else is
// dropped without a reply.
func (o *Orchestrator) host(id domain.PeerID, msgType string) (app.Peer, *core.Session, bool) {
	p, s, ok := o.member(id)
	if !ok {
		return app.Peer{}, nil, false
	}
	if !s.IsHost(id) {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Str("type", msgType).Msg("host command from non-host ignored")
		return app.Peer{}, nil, false
	}
	return p, s, true
}

// SetMuted applies mute_participant / unmute_participant.
func (o *Orchestrator) SetMuted(id, target domain.PeerID, muted bool) {
	notice, status := wire.TypeUnmutedByHost, wire.TypeParticipantUnmuted
	if muted {
		notice, status = wire.TypeMutedByHost, wire.TypeParticipantMuted
	}
	_, s, ok := o.host(id, status)
	if !ok || !s.SetMuted(target, muted) {
		return
	}
	o.unicast(s, target, &wire.Message{Type: notice})
	o.broadcast(s, &wire.Message{Type: status, ClientID: target}, "")
}

// SetMicLocked applies lock_mic / unlock_mic.
func (o *Orchestrator) SetMicLocked(id, target domain.PeerID, locked bool) {
	notice, status := wire.TypeMicUnlocked, wire.TypeParticipantMicUnlocked
	if locked {
		notice, status = wire.TypeMicLocked, wire.TypeParticipantMicLocked
	}
	_, s, ok := o.host(id, status)
	if !ok || !s.SetMicLocked(target, locked) {
		return
	}
	o.unicast(s, target, &wire.Message{Type: notice})
	o.broadcast(s, &wire.Message{Type: status, ClientID: target}, "")
}

// HostRequest forwards request_video / request_unmute to target, or the
// _all variants to every other participant when target is empty.
func (o *Orchestrator) HostRequest(id, target domain.PeerID, msgType string) {
	_, s, ok := o.host(id, msgType)
	if !ok {
		return
	}
	switch msgType {
	case wire.TypeRequestVideo, wire.TypeRequestUnmute:
		o.unicast(s, target, &wire.Message{Type: msgType, ClientID: id})
	case wire.TypeRequestAllVideo, wire.TypeRequestAllUnmute:
		o.broadcast(s, &wire.Message{Type: msgType, ClientID: id}, id)
	}
}
