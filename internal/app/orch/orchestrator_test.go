package orch

import (
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/meetrelay/internal/app"
	"github.com/dkeye/meetrelay/internal/app/sfu"
	"github.com/dkeye/meetrelay/internal/core"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) messages(t *testing.T) []*wire.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*wire.Message, 0, len(c.frames))
	for _, f := range c.frames {
		m, _, err := wire.Decode(f)
		if err != nil {
			t.Fatalf("undecodable frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

// take returns the queued messages and clears the queue.
func (c *fakeConn) take(t *testing.T) []*wire.Message {
	t.Helper()
	out := c.messages(t)
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
	return out
}

func ofType(ms []*wire.Message, typ string) []*wire.Message {
	var out []*wire.Message
	for _, m := range ms {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type packet struct {
	to   string
	data []byte
}

type fakeSocket struct {
	mu      sync.Mutex
	packets []packet
}

func (s *fakeSocket) WriteTo(b []byte, addr net.Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, packet{to: addr.String(), data: append([]byte(nil), b...)})
	return len(b), nil
}

func (s *fakeSocket) take() []packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.packets
	s.packets = nil
	return out
}

type harness struct {
	o    *Orchestrator
	sock *fakeSocket
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sock: &fakeSocket{}, now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	h.o = &Orchestrator{
		Sessions: app.NewSessionManager(nil),
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{},
		Relay:    sfu.NewRelay(h.sock),
		Media:    DefaultMediaConfig(),
		Now:      func() time.Time { return h.now },
	}
	return h
}

func tcpAddr(port int) *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}
}

func (h *harness) create(t *testing.T, name string, port int) (app.Peer, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	p, err := h.o.Create(Hello{Username: name, Remote: tcpAddr(port), Conn: c})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return p, c
}

func (h *harness) join(t *testing.T, name string, code domain.SessionCode, port int) (app.Peer, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	p, err := h.o.Join(Hello{Username: name, Code: code, Remote: tcpAddr(port), Conn: c})
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return p, c
}

func (h *harness) datagram(t *testing.T, kind byte, id domain.PeerID, port int, payload []byte) {
	t.Helper()
	b, err := wire.AppendDatagram(nil, kind, id, payload)
	if err != nil {
		t.Fatal(err)
	}
	h.o.OnDatagram(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}, b)
}

func pcm(samples ...int16) []byte {
	out := make([]byte, 0, 2*len(samples))
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

func mixed(samples ...int16) []byte {
	b, _ := wire.AppendMixedAudio(nil, samples)
	return b
}

func TestCreateAndJoin(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)

	created := ac.take(t)
	if len(created) != 1 || created[0].Type != wire.TypeMeetingCreated {
		t.Fatalf("expected meeting_created, got %+v", created)
	}
	code := created[0].MeetingCode
	if !code.Valid() || created[0].IsHost == nil || !*created[0].IsHost || created[0].ClientID != alice.ID {
		t.Fatalf("unexpected reply %+v", created[0])
	}

	bob, bc := h.join(t, "Bob", code, 4001)
	replies := bc.take(t)
	if len(replies) != 1 || replies[0].Type != wire.TypeJoinSuccess {
		t.Fatalf("expected join_success, got %+v", replies)
	}
	js := replies[0]
	if js.IsHost == nil || *js.IsHost || js.ClientID != bob.ID {
		t.Errorf("unexpected join reply %+v", js)
	}
	if len(js.Participants) != 2 || js.Participants[0].ID != alice.ID || !js.Participants[0].IsHost || js.Participants[1].ID != bob.ID {
		t.Errorf("unexpected roster %+v", js.Participants)
	}

	joined := ofType(ac.take(t), wire.TypeUserJoined)
	if len(joined) != 1 || joined[0].ClientID != bob.ID || joined[0].Username != "Bob" {
		t.Errorf("alice should see bob join, got %+v", joined)
	}
}

func TestJoinNormalisesCode(t *testing.T) {
	h := newHarness(t)
	_, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	lower := domain.SessionCode(strings.ToLower(string(code)))
	if _, err := h.o.Join(Hello{Username: "Bob", Code: lower, Remote: tcpAddr(4001), Conn: &fakeConn{}}); err != nil {
		t.Errorf("lower-case code should join, got %v", err)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	h := newHarness(t)
	h.create(t, "Alice", 4000)
	_, err := h.o.Join(Hello{Username: "Bob", Code: "ZZZZZZ", Remote: tcpAddr(4001), Conn: &fakeConn{}})
	if !errors.Is(err, domain.ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if ErrorText(err) != "Invalid meeting code" {
		t.Errorf("unexpected error text %q", ErrorText(err))
	}
	if h.o.Registry.Len() != 1 {
		t.Errorf("failed join must not register a connection")
	}
}

func TestJoinsKeepOrder(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	names := []string{"Bob", "Carol", "Dave", "Erin"}
	ids := []domain.PeerID{alice.ID}
	for i, n := range names {
		p, _ := h.join(t, n, code, 5000+i)
		ids = append(ids, p.ID)
	}
	roster, err := h.o.Roster(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != len(names)+1 {
		t.Fatalf("expected %d members, got %d", len(names)+1, len(roster))
	}
	for i := range ids {
		if roster[i].ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], roster[i].ID)
		}
	}
}

func TestHostDisconnectPromotesEarliestSurvivor(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	carol, cc := h.join(t, "Carol", code, 4002)
	bc.take(t)
	cc.take(t)

	h.o.OnDisconnect(alice.ID)
	h.o.OnDisconnect(alice.ID)

	for name, c := range map[string]*fakeConn{"bob": bc, "carol": cc} {
		ms := c.take(t)
		changes := ofType(ms, wire.TypeHostChanged)
		if len(changes) != 1 || changes[0].NewHostID != bob.ID {
			t.Errorf("%s: expected exactly one host_changed to bob, got %+v", name, changes)
		}
		if left := ofType(ms, wire.TypeUserLeft); len(left) != 1 || left[0].ClientID != alice.ID {
			t.Errorf("%s: expected one user_left for alice, got %+v", name, left)
		}
	}
	s, _ := h.o.Sessions.Get(code)
	if !s.IsHost(bob.ID) || s.IsHost(carol.ID) {
		t.Errorf("bob should be host")
	}
	if p, _ := h.o.Registry.Get(bob.ID); !p.IsHost {
		t.Errorf("bob's connection flag not updated")
	}
}

func TestLastDisconnectEndsSession(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, _ := h.join(t, "Bob", code, 4001)

	h.o.OnDisconnect(bob.ID)
	h.o.OnDisconnect(alice.ID)

	if h.o.Sessions.Len() != 0 {
		t.Fatalf("session should be gone")
	}
	_, err := h.o.Join(Hello{Username: "Carol", Code: code, Remote: tcpAddr(4002), Conn: &fakeConn{}})
	if !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestMuteExcludesAudioUntilUnmute(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	carol, cc := h.join(t, "Carol", code, 4002)
	ac.take(t)
	bc.take(t)
	cc.take(t)

	h.datagram(t, wire.KindInit, alice.ID, 6000, nil)
	h.datagram(t, wire.KindInit, bob.ID, 6001, nil)
	h.datagram(t, wire.KindInit, carol.ID, 6002, nil)

	h.o.SetMuted(alice.ID, bob.ID, true)
	if got := ofType(bc.take(t), wire.TypeMutedByHost); len(got) != 1 {
		t.Errorf("bob should be told he is muted, got %+v", got)
	}
	for _, c := range []*fakeConn{ac, cc} {
		if got := ofType(c.take(t), wire.TypeParticipantMuted); len(got) != 1 || got[0].ClientID != bob.ID {
			t.Errorf("expected participant_muted for bob, got %+v", got)
		}
	}

	h.datagram(t, wire.KindAudio, bob.ID, 6001, pcm(3000, 3000))
	if got := h.sock.take(); len(got) != 0 {
		t.Fatalf("a muted sender alone must produce no mixes, got %d", len(got))
	}

	h.datagram(t, wire.KindAudio, alice.ID, 6000, pcm(1000, 1000))
	sent := h.sock.take()
	byAddr := map[string][]byte{}
	for _, p := range sent {
		byAddr[p.to] = p.data
	}
	if string(byAddr["10.0.0.1:6002"]) != string(mixed(1000, 1000)) {
		t.Errorf("carol should hear only alice, got % x", byAddr["10.0.0.1:6002"])
	}
	if _, ok := byAddr["10.0.0.1:6000"]; ok {
		t.Errorf("alice must not receive a mix for her own packet")
	}

	h.o.SetMuted(alice.ID, bob.ID, false)
	h.datagram(t, wire.KindAudio, bob.ID, 6001, pcm(3000, 3000))
	byAddr = map[string][]byte{}
	for _, p := range h.sock.take() {
		byAddr[p.to] = p.data
	}
	if string(byAddr["10.0.0.1:6002"]) != string(mixed(2000, 2000)) {
		t.Errorf("carol should hear the average of alice and bob, got % x", byAddr["10.0.0.1:6002"])
	}
	if string(byAddr["10.0.0.1:6000"]) != string(mixed(3000, 3000)) {
		t.Errorf("alice should hear bob unchanged, got % x", byAddr["10.0.0.1:6000"])
	}
}

func TestStaleAudioIsNotMixed(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, _ := h.join(t, "Bob", code, 4001)
	carol, _ := h.join(t, "Carol", code, 4002)
	h.datagram(t, wire.KindInit, carol.ID, 6002, nil)

	h.datagram(t, wire.KindAudio, alice.ID, 6000, pcm(1000))
	h.sock.take()
	h.now = h.now.Add(400 * time.Millisecond)
	h.datagram(t, wire.KindAudio, bob.ID, 6001, pcm(500))
	var carolHeard []byte
	for _, p := range h.sock.take() {
		if p.to == "10.0.0.1:6002" {
			carolHeard = p.data
		}
	}
	if string(carolHeard) != string(mixed(500)) {
		t.Errorf("carol should hear only bob's fresh packet, got % x", carolHeard)
	}

	h.now = h.now.Add(time.Second)
	if n := h.o.SweepAudio(); n != 2 {
		t.Errorf("expected both buffers swept, got %d", n)
	}
}

func TestNonHostCommandsIgnored(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	ac.take(t)
	bc.take(t)

	h.o.SetMuted(bob.ID, alice.ID, true)
	h.o.SetMicLocked(bob.ID, alice.ID, true)
	h.o.HostRequest(bob.ID, alice.ID, wire.TypeRequestVideo)
	h.o.HostRequest(bob.ID, "", wire.TypeRequestAllUnmute)
	h.o.RequestScreenShare(bob.ID, alice.ID)

	if got := ac.take(t); len(got) != 0 {
		t.Errorf("alice received %+v", got)
	}
	if got := bc.take(t); len(got) != 0 {
		t.Errorf("bob received %+v", got)
	}
	s, _ := h.o.Sessions.Get(code)
	if s.IsMuted(alice.ID) || s.IsMicLocked(alice.ID) {
		t.Errorf("non-host changed state")
	}
}

func TestHostRequests(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	_, cc := h.join(t, "Carol", code, 4002)
	ac.take(t)
	bc.take(t)
	cc.take(t)

	h.o.HostRequest(alice.ID, bob.ID, wire.TypeRequestUnmute)
	h.o.HostRequest(alice.ID, "", wire.TypeRequestAllVideo)
	h.o.SetMicLocked(alice.ID, bob.ID, true)

	if got := bc.take(t); len(got) != 4 ||
		got[0].Type != wire.TypeRequestUnmute ||
		got[1].Type != wire.TypeRequestAllVideo ||
		got[2].Type != wire.TypeMicLocked ||
		got[3].Type != wire.TypeParticipantMicLocked {
		t.Errorf("unexpected messages for bob %+v", got)
	}
	if got := cc.take(t); len(got) != 2 || got[0].Type != wire.TypeRequestAllVideo {
		t.Errorf("unexpected messages for carol %+v", got)
	}
	if got := ofType(ac.take(t), wire.TypeRequestAllVideo); len(got) != 0 {
		t.Errorf("host must not receive its own request_all_video")
	}
}

func TestPresenterArbitration(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	ac.take(t)
	bc.take(t)

	h.o.RequestScreenShare(alice.ID, "")
	if got := ofType(bc.take(t), wire.TypeScreenShareStarted); len(got) != 1 || got[0].PresenterID != alice.ID {
		t.Fatalf("bob should see alice start, got %+v", got)
	}

	h.o.RequestScreenShare(bob.ID, "")
	denied := bc.take(t)
	if len(denied) != 1 || denied[0].Type != wire.TypeScreenShareDenied || denied[0].CurrentPresenter != alice.ID {
		t.Fatalf("bob should be denied with alice, got %+v", denied)
	}
	s, _ := h.o.Sessions.Get(code)
	if s.Presenter() != alice.ID {
		t.Fatalf("denial changed the presenter")
	}

	h.o.StopScreenShare(alice.ID)
	for _, c := range []*fakeConn{ac, bc} {
		got := ofType(c.take(t), wire.TypeScreenShareStopped)
		if len(got) != 1 || got[0].PresenterID != alice.ID {
			t.Errorf("expected screen_share_stopped for alice, got %+v", got)
		}
	}

	h.o.RequestScreenShare(bob.ID, "")
	if got := ofType(ac.take(t), wire.TypeScreenShareStarted); len(got) != 1 || got[0].PresenterID != bob.ID {
		t.Errorf("bob's second request should succeed, got %+v", got)
	}
}

func TestScreenFramesOnlyFromPresenter(t *testing.T) {
	h := newHarness(t)
	_, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	ac.take(t)

	h.o.ScreenFrame(bob.ID, "Zm9v")
	if got := ac.take(t); len(got) != 0 {
		t.Errorf("frame from non-presenter relayed: %+v", got)
	}
	h.o.RequestScreenShare(bob.ID, "")
	ac.take(t)
	h.o.ScreenFrame(bob.ID, "Zm9v")
	got := ac.take(t)
	if len(got) != 1 || got[0].Type != wire.TypeScreenFrame || got[0].FrameData != "Zm9v" || got[0].PresenterID != bob.ID {
		t.Errorf("unexpected relay %+v", got)
	}
	if echo := ofType(bc.take(t), wire.TypeScreenFrame); len(echo) != 0 {
		t.Errorf("presenter must not get its own frame back")
	}

	h.o.ScreenFrame(bob.ID, "")
	if got := ac.take(t); len(got) != 0 {
		t.Errorf("empty frame relayed: %+v", got)
	}
}

func TestVideoStateWithoutStateKeepsPresentation(t *testing.T) {
	h := newHarness(t)
	_, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, _ := h.join(t, "Bob", code, 4001)
	carol, cc := h.join(t, "Carol", code, 4002)

	h.o.RequestScreenShare(bob.ID, "")
	ac.take(t)
	cc.take(t)
	h.o.VideoState(bob.ID, nil)
	if got := ofType(ac.take(t), wire.TypeScreenShareStopped); len(got) != 0 {
		t.Errorf("missing state must not stop the presentation, got %+v", got)
	}
	cc.take(t)

	h.o.RequestScreenShare(carol.ID, "")
	denied := ofType(cc.take(t), wire.TypeScreenShareDenied)
	if len(denied) != 1 || denied[0].CurrentPresenter != bob.ID {
		t.Errorf("Bob should still be presenting, got %+v", denied)
	}
}

func TestPresenterLeavingOrVideoOffStopsPresentation(t *testing.T) {
	h := newHarness(t)
	_, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	carol, cc := h.join(t, "Carol", code, 4002)

	h.o.RequestScreenShare(bob.ID, "")
	ac.take(t)
	bc.take(t)
	cc.take(t)
	h.o.VideoState(bob.ID, "stopped")
	if got := ofType(ac.take(t), wire.TypeScreenShareStopped); len(got) != 1 {
		t.Errorf("video off by presenter should stop the presentation, got %+v", got)
	}
	if got := ofType(cc.take(t), wire.TypeParticipantVideoState); len(got) != 1 || got[0].State != "stopped" {
		t.Errorf("expected video state relay, got %+v", got)
	}

	h.o.RequestScreenShare(carol.ID, "")
	ac.take(t)
	h.o.OnDisconnect(carol.ID)
	ms := ac.take(t)
	if len(ms) < 2 || ms[0].Type != wire.TypeScreenShareStopped || ms[len(ms)-1].Type != wire.TypeUserLeft {
		t.Errorf("expected stop before departure, got %+v", ms)
	}
}

func TestRaiseHandQueue(t *testing.T) {
	h := newHarness(t)
	_, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	ac.take(t)
	bc.take(t)

	h.o.RaiseHand(bob.ID, true)
	if got := ofType(bc.take(t), wire.TypeParticipantHandState); len(got) != 1 || !got[0].StateOn() {
		t.Errorf("sender should see its own hand state, got %+v", got)
	}
	ams := ac.take(t)
	if got := ofType(ams, wire.TypeHandQueue); len(got) != 1 || len(got[0].Participants) != 1 || got[0].Participants[0].ID != bob.ID {
		t.Errorf("host should receive the queue, got %+v", got)
	}

	h.o.RaiseHand(bob.ID, true)
	if got := ofType(ac.take(t), wire.TypeHandQueue); len(got) != 0 {
		t.Errorf("unchanged queue should not be resent")
	}
	h.o.RaiseHand(bob.ID, false)
	if got := ofType(ac.take(t), wire.TypeHandQueue); len(got) != 1 || len(got[0].Participants) != 0 {
		t.Errorf("expected empty queue, got %+v", got)
	}
}

func TestChatAndEmoji(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	_, bc := h.join(t, "Bob", code, 4001)
	ac.take(t)
	bc.take(t)

	h.o.Chat(alice.ID, "hello")
	if got := ac.take(t); len(got) != 0 {
		t.Errorf("chat must not echo to sender")
	}
	got := bc.take(t)
	if len(got) != 1 || got[0].Message != "hello" || got[0].ClientID != alice.ID || got[0].Username != "Alice" {
		t.Errorf("unexpected chat %+v", got)
	}

	h.o.Emoji(alice.ID, "👍")
	if len(ofType(ac.take(t), wire.TypeEmojiReaction)) != 1 || len(ofType(bc.take(t), wire.TypeEmojiReaction)) != 1 {
		t.Errorf("emoji should reach everyone")
	}
}

func TestFileRelay(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, bc := h.join(t, "Bob", code, 4001)
	ac.take(t)
	bc.take(t)

	h.o.FileOffer(alice.ID, &wire.Message{Type: wire.TypeFileOffer, FileID: "f1", Filename: "a.txt", Filesize: 3})
	offer := bc.take(t)
	if len(offer) != 1 || offer[0].SenderID != alice.ID || offer[0].Filename != "a.txt" || offer[0].Filesize != 3 {
		t.Fatalf("unexpected offer %+v", offer)
	}
	if len(ac.take(t)) != 0 {
		t.Errorf("offer must not echo")
	}

	h.o.FileRequest(bob.ID, &wire.Message{Type: wire.TypeFileRequest, SenderID: alice.ID, FileID: "f1"})
	req := ac.take(t)
	if len(req) != 1 || req[0].DownloaderID != bob.ID || req[0].FileID != "f1" {
		t.Fatalf("unexpected request %+v", req)
	}

	h.o.FileChunk(alice.ID, &wire.Message{Type: wire.TypeFileChunk, RecipientID: bob.ID, FileID: "f1", Data: "YWJj"})
	h.o.FileEnd(alice.ID, &wire.Message{Type: wire.TypeFileEnd, RecipientID: bob.ID, FileID: "f1"})
	got := bc.take(t)
	if len(got) != 2 || got[0].Data != "YWJj" || got[0].SenderID != alice.ID || got[1].Type != wire.TypeFileEnd {
		t.Errorf("unexpected transfer %+v", got)
	}

	h.o.FileChunk(alice.ID, &wire.Message{Type: wire.TypeFileChunk, RecipientID: "ghost", FileID: "f1"})
	if len(ac.take(t))+len(bc.take(t)) != 0 {
		t.Errorf("unknown recipient should be a silent no-op")
	}
}

func TestUnknownDatagramSender(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	h.join(t, "Bob", code, 4001)
	h.datagram(t, wire.KindInit, alice.ID, 6000, nil)

	h.datagram(t, wire.KindVideo, "mallory", 6666, []byte("frame"))
	h.datagram(t, wire.KindAudio, "mallory", 6666, pcm(1, 2))
	h.o.OnDatagram(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1}, []byte{'A'})

	if got := h.sock.take(); len(got) != 0 {
		t.Errorf("unknown sender produced %d packets", len(got))
	}
	if _, ok := h.o.Registry.Get("mallory"); ok {
		t.Errorf("unknown id was registered")
	}
	if st := h.o.Stats(); st.DroppedPackets != 3 {
		t.Errorf("expected 3 dropped packets, got %d", st.DroppedPackets)
	}
}

func TestVideoRelayToBoundPeers(t *testing.T) {
	h := newHarness(t)
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	bob, _ := h.join(t, "Bob", code, 4001)
	h.join(t, "Carol", code, 4002)
	h.datagram(t, wire.KindInit, bob.ID, 6001, nil)

	h.datagram(t, wire.KindVideo, alice.ID, 6000, []byte("jpeg"))
	sent := h.sock.take()
	want, _ := wire.AppendDatagram(nil, wire.KindVideo, alice.ID, []byte("jpeg"))
	if len(sent) != 1 || sent[0].to != "10.0.0.1:6001" || string(sent[0].data) != string(want) {
		t.Errorf("expected one relay to bob, got %+v", sent)
	}
}

func TestBackpressureKickPolicy(t *testing.T) {
	h := newHarness(t)
	h.o.Policy = app.SimplePolicy{Kick: true}
	alice, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	_, bc := h.join(t, "Bob", code, 4001)
	bc.mu.Lock()
	bc.full = true
	bc.mu.Unlock()

	h.o.Chat(alice.ID, "anyone?")
	bc.mu.Lock()
	closed := bc.closed
	bc.mu.Unlock()
	if !closed {
		t.Errorf("slow peer should be kicked")
	}
	if h.o.Stats().SendFailures != 1 {
		t.Errorf("expected one send failure")
	}
}

func TestEvictSession(t *testing.T) {
	h := newHarness(t)
	_, ac := h.create(t, "Alice", 4000)
	code := ac.take(t)[0].MeetingCode
	_, bc := h.join(t, "Bob", code, 4001)

	n, err := h.o.EvictSession(code)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 kicked, got %d %v", n, err)
	}
	if !ac.closed || !bc.closed {
		t.Errorf("connections should be closed")
	}
	if _, err := h.o.EvictSession("NOPE00"); !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}
