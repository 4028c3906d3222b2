package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunHousekeeping sweeps stale audio buffers every sweepEvery and logs the
// relay statistics every statsEvery until ctx is done. A non-positive
// interval disables that job.
func (o *Orchestrator) RunHousekeeping(ctx context.Context, sweepEvery, statsEvery time.Duration) error {
	sweep := newTicker(sweepEvery)
	defer sweep.Stop()
	stats := newTicker(statsEvery)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			if n := o.SweepAudio(); n > 0 {
				log.Debug().Str("module", "orch.housekeeping").Int("swept", n).Msg("stale audio buffers removed")
			}
		case <-stats.C:
			o.updateGauges()
			st := o.Stats()
			log.Info().
				Str("module", "orch.housekeeping").
				Int("sessions", st.Sessions).
				Int("peers", st.Peers).
				Uint64("messages", st.Messages).
				Uint64("audio_packets", st.AudioPackets).
				Uint64("video_packets", st.VideoPackets).
				Uint64("dropped_packets", st.DroppedPackets).
				Uint64("mixes_sent", st.MixesSent).
				Uint64("send_failures", st.SendFailures).
				Msg("relay statistics")
		}
	}
}

type ticker struct {
	C    <-chan time.Time
	stop func()
}

func (t ticker) Stop() { t.stop() }

func newTicker(d time.Duration) ticker {
	if d <= 0 {
		return ticker{C: nil, stop: func() {}}
	}
	t := time.NewTicker(d)
	return ticker{C: t.C, stop: t.Stop}
}
