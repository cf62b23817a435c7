// Package shuffle produces uniformly random permutations for presentation order.
package shuffle

import "math/rand/v2"

// Shuffle returns a new slice holding a uniformly random permutation of items.
// The input is left untouched. A nil r uses the package-level source.
func Shuffle[T any](items []T, r *rand.Rand) []T {
	out := make([]T, len(items))
	copy(out, items)

	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}

	for i := len(out) - 1; i > 0; i-- {
		j := intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
