package core

import (
	"time"

	"github.com/dkeye/meetrelay/internal/domain"
)

// AudioBuffer is the most recent PCM packet of one sender.
type AudioBuffer struct {
	Samples    []int16
	CapturedAt time.Time
}

// StoreAudio replaces the sender's buffered packet. Unknown senders are
// ignored.
func (s *Session) StoreAudio(id domain.PeerID, samples []int16, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false
	}
	s.audio[id] = AudioBuffer{Samples: samples, CapturedAt: at}
	return true
}

// MixSources returns the buffered packets that may be heard by recipient:
// captured within window before now, not the recipient's own, and not from
// a muted or mic-locked sender. Order follows the roster.
func (s *Session) MixSources(recipient domain.PeerID, now time.Time, window time.Duration) [][]int16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]int16
	for _, id := range s.order {
		if id == recipient {
			continue
		}
		if _, ok := s.muted[id]; ok {
			continue
		}
		if _, ok := s.locked[id]; ok {
			continue
		}
		buf, ok := s.audio[id]
		if !ok || now.Sub(buf.CapturedAt) >= window {
			continue
		}
		out = append(out, buf.Samples)
	}
	return out
}

// SweepAudio drops buffers older than ttl and returns how many went.
func (s *Session) SweepAudio(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, buf := range s.audio {
		if now.Sub(buf.CapturedAt) > ttl {
			delete(s.audio, id)
			n++
		}
	}
	return n
}

// BufferedAudio reports how many senders currently hold a buffer.
func (s *Session) BufferedAudio() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audio)
}
