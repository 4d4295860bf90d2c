// Package system describes a simulation system: particles, their nonbonded
// parameters, the explicit interaction pair list and the global Coulomb
// screening and cutoff settings.
package system

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"pairlab/internal/potential"
)

type Particle struct {
	Position [3]float64 `yaml:"position"`
	Charge   float64    `yaml:"charge"`
	Sigma    float64    `yaml:"sigma"`
	Epsilon  float64    `yaml:"epsilon"`
	W        float64    `yaml:"w"`
	Mass     float64    `yaml:"mass"`
}

type Pair struct {
	I            int     `yaml:"i"`
	J            int     `yaml:"j"`
	ScaleCoulomb float64 `yaml:"scale_coulomb"`
	ScaleLJ      float64 `yaml:"scale_lj"`
}

type System struct {
	Particles []Particle `yaml:"particles"`
	Pairs     []Pair     `yaml:"pairs"`
	Box       [3]float64 `yaml:"box"`
	Beta      float64    `yaml:"beta"`
	Cutoff    float64    `yaml:"cutoff"`
}

func Load(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s System
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse system: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *System) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *System) Validate() error {
	if len(s.Particles) == 0 {
		return fmt.Errorf("system has no particles")
	}
	if s.Cutoff <= 0 {
		return fmt.Errorf("cutoff must be positive, got %f", s.Cutoff)
	}
	if s.Beta < 0 {
		return fmt.Errorf("beta must be non-negative, got %f", s.Beta)
	}
	for k, pr := range s.Pairs {
		if pr.I < 0 || pr.I >= len(s.Particles) || pr.J < 0 || pr.J >= len(s.Particles) {
			return fmt.Errorf("pair %d references particle out of range: (%d,%d)", k, pr.I, pr.J)
		}
		if pr.ScaleCoulomb < 0 || pr.ScaleCoulomb > 1 || pr.ScaleLJ < 0 || pr.ScaleLJ > 1 {
			return fmt.Errorf("pair %d scales must lie in [0,1]", k)
		}
	}
	for i, pt := range s.Particles {
		if pt.Mass < 0 {
			return fmt.Errorf("particle %d has negative mass", i)
		}
		if pt.Epsilon < 0 {
			return fmt.Errorf("particle %d has negative epsilon", i)
		}
	}
	return nil
}

func (s *System) N() int { return len(s.Particles) }

// Frame packs the particle data into the flat buffers the evaluator reads.
func (s *System) Frame() *potential.Frame {
	n := len(s.Particles)
	f := &potential.Frame{
		Coords: make([]float64, n*3),
		Params: make([]float64, n*potential.ParamsPerParticle),
		Box:    potential.NewOrthorhombicBox(s.Box[0], s.Box[1], s.Box[2]),
	}
	for i, pt := range s.Particles {
		copy(f.Coords[i*3:], pt.Position[:])
		base := i * potential.ParamsPerParticle
		f.Params[base+potential.ParamCharge] = pt.Charge
		f.Params[base+potential.ParamSigma] = pt.Sigma
		f.Params[base+potential.ParamEpsilon] = pt.Epsilon
		f.Params[base+potential.ParamW] = pt.W
	}
	return f
}

// Masses returns the per-particle masses, defaulting zero entries to 1.
func (s *System) Masses() []float64 {
	masses := make([]float64, len(s.Particles))
	for i, pt := range s.Particles {
		masses[i] = pt.Mass
		if masses[i] == 0 {
			masses[i] = 1.0
		}
	}
	return masses
}

// PairSlices splits the pair list into the index and scale sequences the
// evaluator is constructed from.
func (s *System) PairSlices() ([][2]int, [][2]float64) {
	pairs := make([][2]int, len(s.Pairs))
	scales := make([][2]float64, len(s.Pairs))
	for k, pr := range s.Pairs {
		pairs[k] = [2]int{pr.I, pr.J}
		scales[k] = [2]float64{pr.ScaleCoulomb, pr.ScaleLJ}
	}
	return pairs, scales
}

// Evaluator builds the system's pair-list potential.
func (s *System) Evaluator(negated bool) (*potential.NonbondedPairList, error) {
	pairs, scales := s.PairSlices()
	return potential.NewNonbondedPairList(pairs, scales, s.Beta, s.Cutoff, negated)
}

// Example builds an alternating-charge cubic lattice with nearest-neighbor
// pairs, sized to the smallest cube holding n particles.
func Example(n int) *System {
	side := int(math.Ceil(math.Cbrt(float64(n))))
	spacing := 0.4

	s := &System{
		Box:    [3]float64{float64(side) * spacing * 2, float64(side) * spacing * 2, float64(side) * spacing * 2},
		Beta:   2.0,
		Cutoff: 1.2,
	}

	for i := 0; i < n; i++ {
		x := i % side
		y := (i / side) % side
		z := i / (side * side)
		charge := 0.5
		if (x+y+z)%2 == 1 {
			charge = -0.5
		}
		s.Particles = append(s.Particles, Particle{
			Position: [3]float64{float64(x) * spacing, float64(y) * spacing, float64(z) * spacing},
			Charge:   charge,
			Sigma:    0.3,
			Epsilon:  0.2,
			Mass:     1.0,
		})
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := s.Particles[i].Position[0] - s.Particles[j].Position[0]
			dy := s.Particles[i].Position[1] - s.Particles[j].Position[1]
			dz := s.Particles[i].Position[2] - s.Particles[j].Position[2]
			if math.Sqrt(dx*dx+dy*dy+dz*dz) <= spacing*1.01 {
				s.Pairs = append(s.Pairs, Pair{I: i, J: j, ScaleCoulomb: 1, ScaleLJ: 1})
			}
		}
	}
	return s
}
