package rhythm

import "golang.org/x/exp/constraints"

// Clamp limits t to the interval between lo and hi. The bounds may be given in either order.
func Clamp[T constraints.Float | constraints.Integer](t, lo, hi T) T {
	if lo > hi {
		lo, hi = hi, lo
	}
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}
