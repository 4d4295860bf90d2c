// Package potential evaluates pairwise nonbonded interactions into shared
// fixed-point accumulator buffers.
package potential

import (
	"errors"
	"math"

	"pairlab/internal/fixed"
)

// Parameter buffer layout: four values per particle.
const (
	ParamsPerParticle = 4

	ParamCharge  = 0
	ParamSigma   = 1
	ParamEpsilon = 2
	ParamW       = 3
)

var (
	ErrIndexRange = errors.New("pair index out of range")
	ErrOverflow   = errors.New("fixed-point accumulator overflow")
)

// Potential is one energy term of a simulation step. Implementations
// accumulate into the shared buffers and never reset them; several terms
// write into the same buffers within a step, in any order.
type Potential interface {
	Execute(n, p int, coords, params []float64, box *Box, out *Buffers) error
}

// Frame holds the per-step inputs: coordinates (n×3), the flat parameter
// buffer (p = 4n) and the periodic box. Evaluators read it, never own or
// mutate it.
type Frame struct {
	Coords []float64
	Params []float64
	Box    Box
}

// N returns the particle count implied by the coordinate buffer.
func (f *Frame) N() int { return len(f.Coords) / 3 }

// P returns the parameter buffer length.
func (f *Frame) P() int { return len(f.Params) }

// Buffers are the caller-owned fixed-point accumulators shared by every
// potential term within a step: per-particle forces (n×3), per-parameter
// derivatives (p) and the single wide energy slot.
type Buffers struct {
	Forces []int64
	DuDP   []int64
	Energy *fixed.Accumulator
}

func NewBuffers(n, p int) *Buffers {
	return &Buffers{
		Forces: make([]int64, n*3),
		DuDP:   make([]int64, p),
		Energy: &fixed.Accumulator{},
	}
}

func (b *Buffers) Reset() {
	for i := range b.Forces {
		b.Forces[i] = 0
	}
	for i := range b.DuDP {
		b.DuDP[i] = 0
	}
	b.Energy.Reset()
}

// Box holds the periodic box vectors. Minimum-image wrapping uses the
// diagonal; a zero diagonal entry disables wrapping in that dimension.
type Box struct {
	V [3][3]float64
}

// NewOrthorhombicBox builds a box from its three edge lengths.
func NewOrthorhombicBox(lx, ly, lz float64) Box {
	var b Box
	b.V[0][0] = lx
	b.V[1][1] = ly
	b.V[2][2] = lz
	return b
}

// MinImage reduces a displacement component to its nearest periodic image.
func (b *Box) MinImage(d float64, dim int) float64 {
	l := b.V[dim][dim]
	if l == 0 {
		return d
	}
	return d - l*math.Round(d/l)
}

// DerivativesToFloat converts an accumulated parameter-derivative buffer
// back to floats, applying each parameter's channel scale. Pure conversion:
// it must run only after every contributing term has finished accumulating.
func DerivativesToFloat(n, p int, duDp []int64) ([]float64, error) {
	if p != n*ParamsPerParticle {
		return nil, errors.New("parameter buffer length must be 4 per particle")
	}
	if len(duDp) != p {
		return nil, errors.New("derivative buffer length mismatch")
	}

	out := make([]float64, p)
	for i := 0; i < p; i++ {
		out[i] = fixed.ToFloat(duDp[i], paramChannel(i%ParamsPerParticle))
	}
	return out, nil
}

func paramChannel(offset int) fixed.Channel {
	switch offset {
	case ParamCharge:
		return fixed.DuDCharge
	case ParamSigma:
		return fixed.DuDSig
	case ParamEpsilon:
		return fixed.DuDEps
	default:
		return fixed.DuDW
	}
}
