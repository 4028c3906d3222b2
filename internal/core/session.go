package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type member struct {
	username string
	joinedAt time.Time
}

// RemoveResult describes what a departure changed.
type RemoveResult struct {
	Found        bool
	WasPresenter bool
	// NewHost is set when the host left and another participant was promoted.
	NewHost      domain.PeerID
	HandsLowered bool
	Empty        bool
}

// Session is the state of one meeting: an ordered roster, the host, the
// mute and mic-lock sets, presenter arbitration, the raised-hand queue and
// the latest audio sample of every sender. It is threadsafe and never
// touches transport resources.
type Session struct {
	code      domain.SessionCode
	createdAt time.Time

	mu        sync.RWMutex
	order     []domain.PeerID
	members   map[domain.PeerID]member
	host      domain.PeerID
	muted     map[domain.PeerID]struct{}
	locked    map[domain.PeerID]struct{}
	presenter domain.PeerID
	hands     []domain.PeerID
	audio     map[domain.PeerID]AudioBuffer
	closed    bool
}

// NewSession creates a session whose sole participant is the host.
func NewSession(code domain.SessionCode, host domain.PeerID, username string, now time.Time) *Session {
	s := &Session{
		code:      code,
		createdAt: now,
		members:   make(map[domain.PeerID]member),
		muted:     make(map[domain.PeerID]struct{}),
		locked:    make(map[domain.PeerID]struct{}),
		audio:     make(map[domain.PeerID]AudioBuffer),
	}
	s.order = append(s.order, host)
	s.members[host] = member{username: username, joinedAt: now}
	s.host = host
	return s
}

func (s *Session) Code() domain.SessionCode { return s.code }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Closed reports whether the last participant left.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Session) Host() domain.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

func (s *Session) IsHost(id domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id != "" && s.host == id
}

func (s *Session) Has(id domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id]
	return ok
}

func (s *Session) Username(id domain.PeerID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[id].username
}

// Add appends a non-host participant. It reports false if id is present or
// the session already emptied out. welcome, if set, runs with the new roster
// before any concurrent broadcast can observe the newcomer.
func (s *Session) Add(id domain.PeerID, username string, now time.Time, welcome func([]domain.Participant)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.members[id]; ok {
		return false
	}
	s.order = append(s.order, id)
	s.members[id] = member{username: username, joinedAt: now}
	if welcome != nil {
		welcome(s.rosterLocked())
	}
	log.Debug().Str("module", "core.session").Str("session", string(s.code)).Str("peer", string(id)).Int("size", len(s.order)).Msg("participant added")
	return true
}

// Remove drops a participant and every piece of state keyed by it. A
// departing presenter clears the presenter slot; a departing host hands the
// role to the earliest-joined survivor. Removing an absent id is a no-op.
func (s *Session) Remove(id domain.PeerID) RemoveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return RemoveResult{Empty: len(s.order) == 0}
	}
	res := RemoveResult{Found: true}
	delete(s.members, id)
	s.order = slices.DeleteFunc(s.order, func(p domain.PeerID) bool { return p == id })
	delete(s.muted, id)
	delete(s.locked, id)
	delete(s.audio, id)
	if s.presenter == id {
		s.presenter = ""
		res.WasPresenter = true
	}
	if i := slices.Index(s.hands, id); i >= 0 {
		s.hands = slices.Delete(s.hands, i, i+1)
		res.HandsLowered = true
	}
	if s.host == id {
		s.host = ""
		if len(s.order) > 0 {
			s.host = s.order[0]
			res.NewHost = s.host
		}
	}
	res.Empty = len(s.order) == 0
	s.closed = res.Empty
	return res
}

// Roster returns the participants in join order.
func (s *Session) Roster() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rosterLocked()
}

func (s *Session) rosterLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, domain.Participant{ID: id, Username: s.members[id].username, IsHost: id == s.host})
	}
	return out
}

// Others returns every participant id except the given one, in join order.
func (s *Session) Others(except domain.PeerID) []domain.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PeerID, 0, len(s.order))
	for _, id := range s.order {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

// SetMuted updates the mute set. It reports false if target is not a
// participant.
func (s *Session) SetMuted(target domain.PeerID, muted bool) bool {
	return s.setFlag(s.muted, target, muted)
}

// SetMicLocked updates the mic-lock set like SetMuted.
func (s *Session) SetMicLocked(target domain.PeerID, locked bool) bool {
	return s.setFlag(s.locked, target, locked)
}

func (s *Session) setFlag(set map[domain.PeerID]struct{}, target domain.PeerID, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[target]; !ok {
		return false
	}
	if on {
		set[target] = struct{}{}
	} else {
		delete(set, target)
	}
	return true
}

func (s *Session) IsMuted(id domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.muted[id]
	return ok
}

func (s *Session) IsMicLocked(id domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.locked[id]
	return ok
}

// RequestPresent grants the presenter slot when it is free or already held
// by id. Otherwise it returns false and the current presenter.
func (s *Session) RequestPresent(id domain.PeerID) (bool, domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false, s.presenter
	}
	if s.presenter != "" && s.presenter != id {
		return false, s.presenter
	}
	s.presenter = id
	return true, id
}

// StopPresent frees the slot if id holds it.
func (s *Session) StopPresent(id domain.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || s.presenter != id {
		return false
	}
	s.presenter = ""
	return true
}

func (s *Session) Presenter() domain.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presenter
}

// RaiseHand appends id to the hand queue when raised and removes it when
// lowered. It reports whether the queue changed.
func (s *Session) RaiseHand(id domain.PeerID, raised bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false
	}
	i := slices.Index(s.hands, id)
	switch {
	case raised && i < 0:
		s.hands = append(s.hands, id)
		return true
	case !raised && i >= 0:
		s.hands = slices.Delete(s.hands, i, i+1)
		return true
	}
	return false
}

// HandQueue returns raised hands in the order they went up.
func (s *Session) HandQueue() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0, len(s.hands))
	for _, id := range s.hands {
		out = append(out, domain.Participant{ID: id, Username: s.members[id].username, IsHost: id == s.host})
	}
	return out
}
