package app

import (
	"fmt"
	"math"
)

// Checked arithmetic for deadline and pot math. Adversarial inputs must abort
// the tx instead of wrapping.

func addInt64AndU64Checked(base int64, delta uint64, what string) (int64, error) {
	if delta > math.MaxInt64 {
		return 0, fmt.Errorf("%s overflow: delta=%d", what, delta)
	}
	d := int64(delta)
	if base > math.MaxInt64-d {
		return 0, fmt.Errorf("%s overflow: base=%d delta=%d", what, base, delta)
	}
	return base + d, nil
}

func addU64Checked(a, b uint64, what string) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("%s overflow: a=%d b=%d", what, a, b)
	}
	return a + b, nil
}
