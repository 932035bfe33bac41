package simulator

import (
	"hash/fnv"
	"math"
)

// Returns v limited to the closed interval [lo, hi].
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Returns v rounded to two decimal places. Negative zero is folded into zero so it
// never shows up as "-0" in encoded records.
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// Returns a 64 bit FNV-1a hash of s, used to give each machine its own random stream.
func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
