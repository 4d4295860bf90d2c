// Package engine orchestrates potential terms over a simulation frame: it
// owns the shared fixed-point buffers, runs every term, checks overflow and
// converts the accumulated results back to floats.
package engine

import (
	"context"
	"fmt"
	"math"

	"pairlab/internal/fixed"
	"pairlab/internal/potential"
)

type Engine struct {
	potentials []potential.Potential
	buffers    *potential.Buffers
	n, p       int

	// forces from the last Evaluate, reused as the leading half of the
	// next velocity-verlet step
	lastForces []float64
}

func New(n int, pots ...potential.Potential) *Engine {
	p := n * potential.ParamsPerParticle
	return &Engine{
		potentials: pots,
		buffers:    potential.NewBuffers(n, p),
		n:          n,
		p:          p,
	}
}

func (e *Engine) AddPotential(pt potential.Potential) {
	e.potentials = append(e.potentials, pt)
}

// StepResult holds one step's converted outputs.
type StepResult struct {
	Energy   float64
	Forces   []float64
	DuDP     []float64
	MaxForce float64
}

// Evaluate zeroes the shared buffers, accumulates every potential term into
// them and converts the totals. The terms' accumulation order is irrelevant;
// the conversion runs only after all of them have finished. An overflowed
// energy accumulator makes the whole step meaningless and aborts it.
func (e *Engine) Evaluate(frame *potential.Frame) (*StepResult, error) {
	if frame.N() != e.n {
		return nil, fmt.Errorf("frame has %d particles, engine sized for %d", frame.N(), e.n)
	}
	if frame.P() != e.p {
		return nil, fmt.Errorf("frame has %d parameters, engine sized for %d", frame.P(), e.p)
	}

	e.buffers.Reset()
	for _, pt := range e.potentials {
		if err := pt.Execute(e.n, e.p, frame.Coords, frame.Params, &frame.Box, e.buffers); err != nil {
			return nil, fmt.Errorf("potential execution: %w", err)
		}
	}

	wide := e.buffers.Energy.Value()
	if fixed.Overflowed(wide) {
		return nil, fmt.Errorf("%w: energy accumulator outside narrow range", potential.ErrOverflow)
	}

	res := &StepResult{
		Energy: fixed.EnergyToFloat(wide),
		Forces: make([]float64, e.n*3),
	}
	for i := range res.Forces {
		res.Forces[i] = fixed.ToFloat(e.buffers.Forces[i], fixed.Force)
		if f := math.Abs(res.Forces[i]); f > res.MaxForce {
			res.MaxForce = f
		}
	}

	duDp, err := potential.DerivativesToFloat(e.n, e.p, e.buffers.DuDP)
	if err != nil {
		return nil, err
	}
	res.DuDP = duDp
	return res, nil
}

// Advance performs one velocity-verlet step in place, mutating the frame's
// coordinates and the velocity buffer. Forces from the previous call are
// reused as the step's leading half.
func (e *Engine) Advance(frame *potential.Frame, vel, masses []float64, dt float64) (*StepResult, error) {
	if e.lastForces == nil {
		res, err := e.Evaluate(frame)
		if err != nil {
			return nil, err
		}
		e.lastForces = res.Forces
	}

	for i := 0; i < e.n; i++ {
		m := masses[i]
		for d := 0; d < 3; d++ {
			a := e.lastForces[i*3+d] / m
			frame.Coords[i*3+d] += vel[i*3+d]*dt + 0.5*a*dt*dt
		}
	}

	res, err := e.Evaluate(frame)
	if err != nil {
		e.lastForces = nil
		return nil, err
	}

	for i := 0; i < e.n; i++ {
		m := masses[i]
		for d := 0; d < 3; d++ {
			vel[i*3+d] += 0.5 * (e.lastForces[i*3+d] + res.Forces[i*3+d]) / m * dt
		}
	}
	e.lastForces = res.Forces
	return res, nil
}

type Config struct {
	Steps int
	Dt    float64
}

func (c Config) validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	return nil
}

type StepRecord struct {
	Time     float64
	Energy   float64
	MaxForce float64
}

type Result struct {
	Records     []StepRecord
	FinalEnergy float64
	EnergyDrift float64
	StepsTaken  int
}

// Run advances the frame for cfg.Steps velocity-verlet steps. A failed step
// wholly invalidates the run: no retries, no partial results.
func (e *Engine) Run(ctx context.Context, frame *potential.Frame, vel, masses []float64, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(vel) != e.n*3 || len(masses) != e.n {
		return nil, fmt.Errorf("velocity/mass buffers do not match %d particles", e.n)
	}

	result := &Result{Records: make([]StepRecord, 0, cfg.Steps)}
	initialEnergy := 0.0

	for i := 0; i < cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		res, err := e.Advance(frame, vel, masses, cfg.Dt)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		t := float64(i+1) * cfg.Dt
		result.Records = append(result.Records, StepRecord{Time: t, Energy: res.Energy, MaxForce: res.MaxForce})
		result.FinalEnergy = res.Energy
		result.StepsTaken++

		if i == 0 {
			initialEnergy = res.Energy
		}
	}

	if initialEnergy != 0 {
		result.EnergyDrift = math.Abs(result.FinalEnergy-initialEnergy) / math.Abs(initialEnergy)
	}
	return result, nil
}
