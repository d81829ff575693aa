package lifecycle

import "time"

// Clock is an injectable time source so that date-driven logic stays
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// sameDay reports whether two instants fall on the same calendar day in
// UTC. Effective and obsolescence dates are day-granular.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// beforeDay reports whether a falls on an earlier calendar day than b.
func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
