package app

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionInfo is a read-only view for APIs.
type SessionInfo struct {
	Code         domain.SessionCode `json:"code"`
	Host         domain.PeerID      `json:"host"`
	Participants int                `json:"participant_count"`
	Presenter    domain.PeerID      `json:"presenter,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// SessionManager is the session table: code -> live session.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[domain.SessionCode]*core.Session
	draw     domain.CodeSource
}

// NewSessionManager uses draw to generate codes; nil means math/rand.
func NewSessionManager(draw domain.CodeSource) *SessionManager {
	if draw == nil {
		draw = rand.IntN
	}
	return &SessionManager{
		sessions: make(map[domain.SessionCode]*core.Session),
		draw:     draw,
	}
}

// Create opens a session hosted by host under a code no active session
// holds. Codes are redrawn until free.
func (m *SessionManager) Create(host domain.PeerID, username string, now time.Time) *core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := domain.NewSessionCode(m.draw)
	for attempts := 1; ; attempts++ {
		if _, taken := m.sessions[code]; !taken {
			break
		}
		log.Debug().Str("module", "app.sessions").Str("session", string(code)).Int("attempt", attempts).Msg("code collision, redrawing")
		code = domain.NewSessionCode(m.draw)
	}
	s := core.NewSession(code, host, username, now)
	m.sessions[code] = s
	log.Info().Str("module", "app.sessions").Str("session", string(code)).Str("host", string(host)).Msg("session created")
	return s
}

func (m *SessionManager) Get(code domain.SessionCode) (*core.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	return s, ok
}

// Remove deletes the entry for code if it still points at s.
func (m *SessionManager) Remove(code domain.SessionCode, s *core.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[code]; !ok || cur != s {
		return false
	}
	delete(m.sessions, code)
	log.Info().Str("module", "app.sessions").Str("session", string(code)).Msg("session removed")
	return true
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of the live sessions.
func (m *SessionManager) All() []*core.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// List returns session views, oldest first.
func (m *SessionManager) List() []SessionInfo {
	all := m.All()
	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, SessionInfo{
			Code:         s.Code(),
			Host:         s.Host(),
			Participants: s.Len(),
			Presenter:    s.Presenter(),
			CreatedAt:    s.CreatedAt(),
		})
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out
}
