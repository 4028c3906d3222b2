package signal

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(c *Conn) {
	defer c.Close()
	for data := range c.send {
		if err := c.fc.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteTimeout)); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.fc.WriteFrame(data); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
}

// readPump is the peer's permanent receive loop. However it ends, the
// peer goes through the normal disconnect cleanup.
func (ctl *Controller) readPump(id domain.PeerID, c *Conn) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(id)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(id)
		c.Close()
	}()

	for {
		data, err := c.fc.ReadFrame()
		if err != nil {
			if isClosed(err) {
				return
			}
			ctl.protocolError(string(id), "read", err)
			return
		}
		m, _, err := wire.Decode(data)
		if err != nil {
			ctl.protocolError(string(id), "decode", err)
			return
		}
		ctl.handleSignal(id, c, m)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func (ctl *Controller) protocolError(who, stage string, err error) {
	reason := stage
	if errors.Is(err, wire.ErrFrameTooLarge) {
		reason = "oversize"
	}
	ctl.Orch.Metrics.RecordProtocolError(reason)
	log.Warn().Err(err).Str("module", "signal").Str("conn", who).Str("reason", reason).Msg("closing connection")
}

func (ctl *Controller) handleSignal(id domain.PeerID, c *Conn, m *wire.Message) {
	o := ctl.Orch
	o.Touch(id, m.Type)

	switch m.Type {
	case wire.TypePing:
		ctl.handlePing(c)
	case wire.TypeChat:
		o.Chat(id, m.Message)
	case wire.TypeVideoState:
		o.VideoState(id, m.State)
	case wire.TypeRaiseHand:
		o.RaiseHand(id, m.StateOn())
	case wire.TypeEmojiReaction:
		if m.Emoji != "" {
			o.Emoji(id, m.Emoji)
		}
	case wire.TypeFileOffer:
		o.FileOffer(id, m)
	case wire.TypeFileRequest:
		o.FileRequest(id, m)
	case wire.TypeFileChunk:
		o.FileChunk(id, m)
	case wire.TypeFileEnd:
		o.FileEnd(id, m)
	case wire.TypeMuteParticipant, wire.TypeUnmuteParticipant:
		o.SetMuted(id, m.TargetClientID, m.Type == wire.TypeMuteParticipant)
	case wire.TypeLockMic, wire.TypeUnlockMic:
		o.SetMicLocked(id, m.TargetClientID, m.Type == wire.TypeLockMic)
	case wire.TypeRequestVideo, wire.TypeRequestAllVideo, wire.TypeRequestUnmute, wire.TypeRequestAllUnmute:
		o.HostRequest(id, m.TargetClientID, m.Type)
	case wire.TypeRequestScreenShare:
		o.RequestScreenShare(id, m.TargetClientID)
	case wire.TypeStopScreenShare:
		o.StopScreenShare(id)
	case wire.TypeScreenFrame:
		o.ScreenFrame(id, m.FrameData)
	default:
		log.Warn().Str("module", "signal").Str("peer", string(id)).Str("type", m.Type).Msg("unknown signal")
	}
}
