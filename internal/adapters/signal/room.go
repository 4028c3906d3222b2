package signal

import (
	"errors"
	"net"
	"time"

	"github.com/dkeye/meetrelay/internal/app/orch"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

var ErrRateLimited = errors.New("too many meetings created")

// handshake reads the create/join request and registers the peer. On any
// failure the connection is answered (when possible) and closed.
func (ctl *Controller) handshake(fc FrameConn, connID string) (*Conn, domain.PeerID, bool) {
	_ = fc.SetReadDeadline(time.Now().Add(ctl.Opts.HandshakeTimeout))
	data, err := fc.ReadFrame()
	if err != nil {
		if isClosed(err) {
			log.Debug().Str("module", "signal").Str("conn", connID).Msg("closed before handshake")
		} else {
			ctl.protocolError(connID, "handshake_read", err)
		}
		_ = fc.Close()
		return nil, "", false
	}
	_ = fc.SetReadDeadline(time.Time{})

	m, codec, err := wire.Decode(data)
	if err != nil {
		ctl.protocolError(connID, "decode", err)
		ctl.reject(fc, wire.JSON, "Invalid message format")
		return nil, "", false
	}
	if named, ok := wire.CodecByName(m.Codec); ok && m.Codec != "" {
		codec = named
	}

	conn := newConn(fc, codec, ctl.Opts.SendQueue)
	hello := orch.Hello{
		Username: m.Username,
		Code:     m.MeetingCode,
		ConnID:   connID,
		Remote:   fc.RemoteAddr(),
		Conn:     conn,
		Codec:    codec,
	}

	var joinErr error
	var id domain.PeerID
	switch m.Type {
	case wire.TypeCreateMeeting:
		if !ctl.Limiter.Allow(remoteHost(fc.RemoteAddr())) {
			joinErr = ErrRateLimited
			break
		}
		p, err := ctl.Orch.Create(hello)
		id, joinErr = p.ID, err
	case wire.TypeJoinMeeting:
		p, err := ctl.Orch.Join(hello)
		id, joinErr = p.ID, err
	default:
		ctl.protocolError(connID, "handshake_type", errors.New("unexpected "+m.Type))
		ctl.reject(fc, codec, "Expected create_meeting or join_meeting")
		return nil, "", false
	}
	if joinErr != nil {
		log.Info().Err(joinErr).Str("module", "signal").Str("conn", connID).Str("type", m.Type).Msg("handshake refused")
		text := orch.ErrorText(joinErr)
		if errors.Is(joinErr, ErrRateLimited) {
			text = "Too many meetings created, try again later"
		}
		ctl.reject(fc, codec, text)
		return nil, "", false
	}
	log.Info().Str("module", "signal").Str("conn", connID).Str("peer", string(id)).Str("codec", codec.Name()).Msg("handshake done")
	return conn, id, true
}

// reject writes an error reply straight to the transport and closes it.
// Nothing else can be writing yet.
func (ctl *Controller) reject(fc FrameConn, codec wire.Codec, text string) {
	defer fc.Close()
	b, err := codec.Marshal(wire.ErrorMessage(text))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal error reply")
		return
	}
	_ = fc.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteTimeout))
	if err := fc.WriteFrame(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("error reply not delivered")
	}
}

func remoteHost(a net.Addr) string {
	s := addrString(a)
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return s
}
