package signal

import (
	"github.com/dkeye/meetrelay/internal/wire"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handlePing(c *Conn) {
	b, err := c.codec.Marshal(&wire.Message{Type: wire.TypePong})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal pong")
		return
	}
	_ = c.TrySend(b)
}
