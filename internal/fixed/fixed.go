// Package fixed implements the integer representation used for every
// accumulated quantity in a simulation step. Encoding a real number as a
// scaled integer makes parallel accumulation deterministic: integer addition
// commutes, so thousands of unordered atomic adds produce bit-identical
// results regardless of scheduling.
package fixed

import (
	"math"

	num "github.com/shabbyrobe/go-num"
)

// Per-channel scale factors. Derivative magnitudes differ by orders of
// magnitude across parameter types, so each channel carries its own scale;
// a single scale would either lose precision for small channels or overflow
// large ones. These are bound for the lifetime of a simulation: changing
// them mid-run invalidates any previously accumulated state.
const (
	ScaleEnergy    = 1 << 40
	ScaleForce     = 1 << 40
	ScaleDuDCharge = 1 << 40
	ScaleDuDSig    = 1 << 41
	ScaleDuDEps    = 1 << 42
	ScaleDuDW      = 1 << 40
)

// Channel identifies one of the independently scaled accumulated quantities.
type Channel int

const (
	Energy Channel = iota
	Force
	DuDCharge
	DuDSig
	DuDEps
	DuDW
)

var scales = [...]float64{
	Energy:    ScaleEnergy,
	Force:     ScaleForce,
	DuDCharge: ScaleDuDCharge,
	DuDSig:    ScaleDuDSig,
	DuDEps:    ScaleDuDEps,
	DuDW:      ScaleDuDW,
}

var names = [...]string{
	Energy:    "energy",
	Force:     "force",
	DuDCharge: "du_dcharge",
	DuDSig:    "du_dsig",
	DuDEps:    "du_deps",
	DuDW:      "du_dw",
}

func (c Channel) Scale() float64 { return scales[c] }
func (c Channel) String() string { return names[c] }

// FromFloat rounds x*scale to the nearest representable integer. Overflow is
// not detected here; it is caught downstream by Overflowed when the wide
// accumulation is narrowed or reported.
func FromFloat(x float64, c Channel) int64 {
	return int64(math.Round(x * scales[c]))
}

// ToFloat recovers the real value of a narrow accumulator.
func ToFloat(v int64, c Channel) float64 {
	return float64(v) / scales[c]
}

// EnergyToFloat converts the wide energy accumulator back to a float. The
// caller must check Overflowed first: past the int64 range the narrowed
// value is meaningless.
func EnergyToFloat(v num.I128) float64 {
	return float64(v.AsInt64()) / ScaleEnergy
}

// Overflowed reports whether a wide accumulator value lies outside the range
// of the narrow signed integer used everywhere else. The bounds themselves
// are representable.
func Overflowed(v num.I128) bool {
	return v.Cmp(maxNarrow) > 0 || v.Cmp(minNarrow) < 0
}

var (
	maxNarrow = num.I128From64(math.MaxInt64)
	minNarrow = num.I128From64(math.MinInt64)
)
