package sequencer

import (
	"fmt"
	"math"
	"time"
)

// DefaultPPQN is the default resolution in pulses per quarter note.
const DefaultPPQN = 480

// Tick is a position in pulses since the start of the project.
type Tick uint64

// MaxTick is the last representable position.
const MaxTick = Tick(math.MaxUint64)

// Zero returns the project start.
func Zero() Tick { return 0 }

// FromBeats converts a (possibly fractional) beat position to ticks,
// rounding to the nearest pulse. Negative beats clamp to zero.
func FromBeats(beats float64, ppqn int) Tick {
	if beats <= 0 || ppqn <= 0 {
		return 0
	}
	return Tick(math.Round(beats * float64(ppqn)))
}

// Offset returns t+delta, failing with ErrOverflow instead of wrapping.
func (t Tick) Offset(delta uint32) (Tick, error) {
	if uint64(delta) > uint64(MaxTick-t) {
		return t, fmt.Errorf("offset %d by %d: %w", t, delta, ErrOverflow)
	}
	return t + Tick(delta), nil
}

// Advance moves t forward by one pulse. On overflow t is left unchanged.
func (t *Tick) Advance() error {
	if *t == MaxTick {
		return fmt.Errorf("advance %d: %w", *t, ErrOverflow)
	}
	*t++
	return nil
}

// AsBeat returns the position in quarter notes.
func (t Tick) AsBeat(ppqn int) float64 {
	return float64(t) / float64(ppqn)
}

// AsTime returns the wall-clock offset of t at a constant tempo.
func (t Tick) AsTime(bpm float64, ppqn int) time.Duration {
	seconds := t.AsBeat(ppqn) * (60 / bpm)
	return time.Duration(seconds * float64(time.Second))
}

// TickDuration is the length of one pulse at the given tempo.
func TickDuration(bpm float64, ppqn int) time.Duration {
	return time.Duration(float64(time.Second) * 60 / bpm / float64(ppqn))
}
