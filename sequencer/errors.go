package sequencer

import (
	"errors"

	"golang.org/x/exp/constraints"
)

var (
	// ErrInvalidParameter rejects an out-of-range port, channel, tempo or
	// note value. Storage is left unchanged.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidDuration rejects a zero-length event block.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrOverflow rejects tick arithmetic past the representable range.
	ErrOverflow = errors.New("tick overflow")

	// ErrNotFound reports a track or clip id with no match, usually a stale
	// id held after removal.
	ErrNotFound = errors.New("not found")
)

// within reports whether lo <= v <= hi.
func within[T constraints.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}
