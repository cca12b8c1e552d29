package feed

import (
	"context"
	"time"

	"github.com/mvmcode/elves-sub000/internal/game"
)

// MaxReplayGap caps the pause between two recorded events so long idle
// stretches do not stall playback.
const MaxReplayGap = 5 * time.Second

// ReplayDelays returns the wait before each event: the timestamp delta to
// its predecessor (in seconds) divided by speed and capped at
// MaxReplayGap. The first event and any out-of-order event wait zero.
func ReplayDelays(evs []game.Event, speed float64) []time.Duration {
	if speed <= 0 {
		speed = 1
	}
	out := make([]time.Duration, len(evs))
	for i := 1; i < len(evs); i++ {
		dt := evs[i].Timestamp - evs[i-1].Timestamp
		if dt <= 0 {
			continue
		}
		d := time.Duration(float64(dt) * float64(time.Second) / speed)
		out[i] = min(d, MaxReplayGap)
	}
	return out
}

// Replay sends evs to out, paced by their recorded timestamps. It returns
// ctx.Err() if cancelled and nil once every event is sent. Replay does
// not close out.
func Replay(ctx context.Context, evs []game.Event, speed float64, out chan<- game.Event) error {
	delays := ReplayDelays(evs, speed)
	for i, ev := range evs {
		if delays[i] > 0 {
			t := time.NewTimer(delays[i])
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
