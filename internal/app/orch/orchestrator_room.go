package orch

import (
	"errors"
	"fmt"
	"net"

	"github.com/dkeye/meetrelay/internal/app"
	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/journal"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

// Hello is an authorised create or join request together with the
// connection it arrived on.
type Hello struct {
	Username string
	Code     domain.SessionCode
	ConnID   string
	Remote   net.Addr
	Conn     core.SignalConnection
	Codec    wire.Codec
}

func (o *Orchestrator) newPeer(h Hello, name string) app.Peer {
	now := o.now()
	remote := ""
	if h.Remote != nil {
		remote = h.Remote.String()
	}
	return app.Peer{
		ID:           domain.NewPeerID(name, h.Remote),
		ConnID:       h.ConnID,
		Username:     name,
		Remote:       remote,
		Conn:         h.Conn,
		Codec:        h.Codec,
		JoinedAt:     now,
		LastActivity: now,
	}
}

// Create opens a new session with the caller as sole participant and host,
// and queues the meeting_created reply.
func (o *Orchestrator) Create(h Hello) (app.Peer, error) {
	name, err := domain.NormalizeUsername(h.Username)
	if err != nil {
		return app.Peer{}, err
	}
	p := o.newPeer(h, name)
	p.IsHost = true

	s := o.Sessions.Create(p.ID, name, p.JoinedAt)
	p.Code = s.Code()
	if err := o.Registry.Register(p); err != nil {
		s.Remove(p.ID)
		o.Sessions.Remove(s.Code(), s)
		return app.Peer{}, err
	}
	o.send(p, &wire.Message{
		Type:        wire.TypeMeetingCreated,
		MeetingCode: s.Code(),
		ClientID:    p.ID,
		IsHost:      wire.Bool(true),
	})

	o.Metrics.RecordSessionCreated()
	o.updateGauges()
	o.record(journal.Entry{Event: journal.MeetingCreated, Session: s.Code(), Peer: p.ID, Username: name})
	log.Info().Str("module", "orch").Str("session", string(s.Code())).Str("peer", string(p.ID)).Msg("meeting created")
	return p, nil
}

// Join adds the caller to an existing session. The join_success reply is
// queued before any broadcast can reach the newcomer; user_joined then goes
// to everybody else.
func (o *Orchestrator) Join(h Hello) (app.Peer, error) {
	name, err := domain.NormalizeUsername(h.Username)
	if err != nil {
		return app.Peer{}, err
	}
	code := domain.NormalizeCode(string(h.Code))
	s, ok := o.Sessions.Get(code)
	if !ok {
		return app.Peer{}, fmt.Errorf("%w: %q", domain.ErrUnknownSession, code)
	}
	p := o.newPeer(h, name)
	p.Code = code
	if err := o.Registry.Register(p); err != nil {
		return app.Peer{}, err
	}
	added := s.Add(p.ID, name, p.JoinedAt, func(roster []domain.Participant) {
		o.send(p, &wire.Message{
			Type:         wire.TypeJoinSuccess,
			MeetingCode:  code,
			ClientID:     p.ID,
			IsHost:       wire.Bool(false),
			Participants: roster,
		})
	})
	if !added {
		// The session emptied out between lookup and insert.
		o.Registry.Unregister(p.ID)
		return app.Peer{}, fmt.Errorf("%w: %q", domain.ErrUnknownSession, code)
	}

	o.broadcast(s, &wire.Message{
		Type:     wire.TypeUserJoined,
		ClientID: p.ID,
		Username: name,
		IsHost:   wire.Bool(false),
	}, p.ID)

	o.updateGauges()
	o.record(journal.Entry{Event: journal.ParticipantJoined, Session: code, Peer: p.ID, Username: name})
	log.Info().Str("module", "orch").Str("session", string(code)).Str("peer", string(p.ID)).Int("size", s.Len()).Msg("participant joined")
	return p, nil
}

// ErrorText is the reply text for a failed create or join.
func ErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownSession):
		return "Invalid meeting code"
	case errors.Is(err, domain.ErrUsernameEmpty):
		return "Username required"
	case errors.Is(err, domain.ErrUsernameTooLong):
		return "Username too long"
	case errors.Is(err, app.ErrDuplicatePeer):
		return "Already connected"
	}
	return "Request failed"
}

// OnDisconnect runs when a peer's reliable channel closes for any reason.
// It is idempotent. Cleanup order: presenter stop, host promotion, then the
// departure notice. An emptied session is deleted without broadcasts.
func (o *Orchestrator) OnDisconnect(id domain.PeerID) {
	p, ok := o.Registry.Unregister(id)
	if !ok {
		return
	}
	defer o.updateGauges()
	o.record(journal.Entry{Event: journal.ParticipantLeft, Session: p.Code, Peer: id, Username: p.Username})

	s, ok := o.Sessions.Get(p.Code)
	if !ok {
		return
	}
	res := s.Remove(id)
	if !res.Found {
		return
	}
	if res.Empty {
		o.Sessions.Remove(p.Code, s)
		o.record(journal.Entry{Event: journal.MeetingEnded, Session: p.Code})
		log.Info().Str("module", "orch").Str("session", string(p.Code)).Msg("meeting ended")
		return
	}

	if res.WasPresenter {
		o.broadcast(s, &wire.Message{Type: wire.TypeScreenShareStopped, PresenterID: id}, "")
	}
	if res.NewHost != "" {
		o.Registry.SetHost(res.NewHost, true)
		o.broadcast(s, &wire.Message{
			Type:      wire.TypeHostChanged,
			NewHostID: res.NewHost,
			Username:  s.Username(res.NewHost),
		}, "")
		o.record(journal.Entry{Event: journal.HostChanged, Session: p.Code, Peer: res.NewHost, Username: s.Username(res.NewHost)})
		log.Info().Str("module", "orch").Str("session", string(p.Code)).Str("host", string(res.NewHost)).Msg("host promoted")
	}
	if res.NewHost != "" || res.HandsLowered {
		o.sendHandQueue(s)
	}
	o.broadcast(s, &wire.Message{Type: wire.TypeUserLeft, ClientID: id, Username: p.Username}, "")
	log.Info().Str("module", "orch").Str("session", string(p.Code)).Str("peer", string(id)).Int("size", s.Len()).Msg("participant left")
}

// Kick closes the peer's reliable channel; its read loop then runs the
// normal disconnect path.
func (o *Orchestrator) Kick(id domain.PeerID) bool {
	p, ok := o.Registry.Get(id)
	if !ok {
		return false
	}
	p.Conn.Close()
	log.Info().Str("module", "orch").Str("peer", string(id)).Msg("kicked")
	return true
}

// EvictSession kicks every participant of the session and returns how many
// connections were closed.
func (o *Orchestrator) EvictSession(code domain.SessionCode) (int, error) {
	s, ok := o.Sessions.Get(domain.NormalizeCode(string(code)))
	if !ok {
		return 0, domain.ErrUnknownSession
	}
	n := 0
	for _, p := range s.Roster() {
		if o.Kick(p.ID) {
			n++
		}
	}
	log.Info().Str("module", "orch").Str("session", string(s.Code())).Int("kicked", n).Msg("session evicted")
	return n, nil
}

// Roster returns the participants of a session in join order.
func (o *Orchestrator) Roster(code domain.SessionCode) ([]domain.Participant, error) {
	s, ok := o.Sessions.Get(domain.NormalizeCode(string(code)))
	if !ok {
		return nil, domain.ErrUnknownSession
	}
	return s.Roster(), nil
}
