package potential

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	num "github.com/shabbyrobe/go-num"

	"pairlab/internal/fixed"
)

const twoOverSqrtPi = 2.0 / 1.7724538509055160272981674833411

// NonbondedPairList evaluates an explicit list of interacting particle
// pairs: screened Coulomb plus Lennard-Jones, with a per-pair scale pair
// down-weighting or excluding each term. With negated set, every
// contribution is subtracted instead of added, which implements exclusion
// corrections layered on top of a separately computed all-pairs term.
//
// The pair list and scales are copied at construction and immutable
// afterwards. Execute carries no state between calls; all memory lives in
// the caller's buffers.
type NonbondedPairList struct {
	pairs   [][2]int
	scales  [][2]float64
	beta    float64
	cutoff  float64
	negated bool
	workers int
}

func NewNonbondedPairList(pairs [][2]int, scales [][2]float64, beta, cutoff float64, negated bool) (*NonbondedPairList, error) {
	if len(pairs) != len(scales) {
		return nil, fmt.Errorf("pair list length %d does not match scale list length %d", len(pairs), len(scales))
	}
	if cutoff <= 0 {
		return nil, fmt.Errorf("cutoff must be positive, got %f", cutoff)
	}

	nb := &NonbondedPairList{
		pairs:   make([][2]int, len(pairs)),
		scales:  make([][2]float64, len(scales)),
		beta:    beta,
		cutoff:  cutoff,
		negated: negated,
		workers: runtime.GOMAXPROCS(0),
	}
	copy(nb.pairs, pairs)
	copy(nb.scales, scales)
	return nb, nil
}

func (nb *NonbondedPairList) NumPairs() int { return len(nb.pairs) }
func (nb *NonbondedPairList) Negated() bool { return nb.negated }

// SetWorkers overrides the fan-out width. The accumulated result does not
// depend on it.
func (nb *NonbondedPairList) SetWorkers(n int) {
	if n > 0 {
		nb.workers = n
	}
}

// Execute accumulates this term's contribution for every listed pair into
// out. The contract is strictly additive: prior buffer contents survive.
// Pairs are fanned out across workers with no ordering guarantee; because
// every write is an integer atomic add, the result is bit-identical for any
// schedule or pair permutation.
func (nb *NonbondedPairList) Execute(n, p int, coords, params []float64, box *Box, out *Buffers) error {
	for _, pair := range nb.pairs {
		if pair[0] < 0 || pair[0] >= n || pair[1] < 0 || pair[1] >= n {
			return fmt.Errorf("%w: pair (%d,%d) with %d particles", ErrIndexRange, pair[0], pair[1], n)
		}
	}

	workers := nb.workers
	if workers > len(nb.pairs) {
		workers = len(nb.pairs)
	}
	if workers <= 1 {
		out.Energy.AddWide(nb.evalRange(0, len(nb.pairs), coords, params, box, out))
		return nil
	}

	chunk := (len(nb.pairs) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(nb.pairs) {
			hi = len(nb.pairs)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			out.Energy.AddWide(nb.evalRange(lo, hi, coords, params, box, out))
		}(lo, hi)
	}
	wg.Wait()
	return nil
}

// evalRange computes pairs [lo,hi) and returns the wide energy partial for
// the range. Force and derivative increments go straight into the shared
// buffers via atomic adds.
func (nb *NonbondedPairList) evalRange(lo, hi int, coords, params []float64, box *Box, out *Buffers) num.I128 {
	sign := 1.0
	if nb.negated {
		sign = -1.0
	}
	cutoff2 := nb.cutoff * nb.cutoff
	energy := num.I128{}

	for k := lo; k < hi; k++ {
		i, j := nb.pairs[k][0], nb.pairs[k][1]
		scQ, scLJ := nb.scales[k][0], nb.scales[k][1]
		if scQ == 0 && scLJ == 0 {
			continue
		}

		var delta [3]float64
		d2 := 0.0
		for d := 0; d < 3; d++ {
			delta[d] = box.MinImage(coords[i*3+d]-coords[j*3+d], d)
			d2 += delta[d] * delta[d]
		}
		dw := params[i*ParamsPerParticle+ParamW] - params[j*ParamsPerParticle+ParamW]
		d2 += dw * dw

		// Exclusive boundary: a pair at exactly the cutoff contributes
		// zero bits, with no smoothing term.
		if d2 >= cutoff2 {
			continue
		}

		dist := math.Sqrt(d2)
		inv := 1.0 / dist

		qi := params[i*ParamsPerParticle+ParamCharge]
		qj := params[j*ParamsPerParticle+ParamCharge]

		u := 0.0    // pair energy
		g := 0.0    // dU/ddist
		dqI := 0.0  // dU/dq_i
		dqJ := 0.0  // dU/dq_j
		dsig := 0.0 // dU/dsigma per particle
		depI := 0.0 // dU/deps_i
		depJ := 0.0 // dU/deps_j

		if scQ != 0 {
			erfcBD := math.Erfc(nb.beta * dist)
			uq := scQ * qi * qj * erfcBD * inv
			u += uq
			g -= scQ * qi * qj * (erfcBD*inv*inv + twoOverSqrtPi*nb.beta*math.Exp(-nb.beta*nb.beta*d2)*inv)
			dqI = scQ * qj * erfcBD * inv
			dqJ = scQ * qi * erfcBD * inv
		}

		epsI := params[i*ParamsPerParticle+ParamEpsilon]
		epsJ := params[j*ParamsPerParticle+ParamEpsilon]
		if scLJ != 0 && epsI > 0 && epsJ > 0 {
			sigI := params[i*ParamsPerParticle+ParamSigma]
			sigJ := params[j*ParamsPerParticle+ParamSigma]
			sig := 0.5 * (sigI + sigJ)
			eps := math.Sqrt(epsI * epsJ)

			sr := sig * inv
			s6 := sr * sr * sr * sr * sr * sr
			s12 := s6 * s6

			ulj := scLJ * 4 * eps * (s12 - s6)
			u += ulj
			g += scLJ * 4 * eps * (6*s6 - 12*s12) * inv

			// sigma_ij and eps_ij are Lorentz-Berthelot mixes; the chain
			// rule splits evenly between the two particles.
			dsig = 0.5 * scLJ * 4 * eps * (12*s12 - 6*s6) / sig
			depI = ulj / (2 * epsI)
			depJ = ulj / (2 * epsJ)
		}

		energy = energy.Add(num.I128From64(fixed.FromFloat(sign*u, fixed.Energy)))

		for d := 0; d < 3; d++ {
			f := -g * delta[d] * inv
			fixed.AtomicAdd(out.Forces, i*3+d, fixed.FromFloat(sign*f, fixed.Force))
			fixed.AtomicAdd(out.Forces, j*3+d, fixed.FromFloat(-sign*f, fixed.Force))
		}

		nb.addDeriv(out, i, ParamCharge, sign*dqI)
		nb.addDeriv(out, j, ParamCharge, sign*dqJ)
		nb.addDeriv(out, i, ParamSigma, sign*dsig)
		nb.addDeriv(out, j, ParamSigma, sign*dsig)
		nb.addDeriv(out, i, ParamEpsilon, sign*depI)
		nb.addDeriv(out, j, ParamEpsilon, sign*depJ)

		dwGrad := g * dw * inv
		nb.addDeriv(out, i, ParamW, sign*dwGrad)
		nb.addDeriv(out, j, ParamW, -sign*dwGrad)
	}

	return energy
}

func (nb *NonbondedPairList) addDeriv(out *Buffers, particle, offset int, v float64) {
	if v == 0 {
		return
	}
	fixed.AtomicAdd(out.DuDP, particle*ParamsPerParticle+offset, fixed.FromFloat(v, paramChannel(offset)))
}

// DerivativesToFloat converts the shared derivative buffer back to floats
// once every contributing term has finished.
func (nb *NonbondedPairList) DerivativesToFloat(n, p int, duDp []int64) ([]float64, error) {
	return DerivativesToFloat(n, p, duDp)
}
