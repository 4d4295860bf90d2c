package engine_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pairlab/internal/engine"
	"pairlab/internal/potential"
)

// saturating drives the wide energy accumulator past the narrow range.
type saturating struct{}

func (saturating) Execute(n, p int, coords, params []float64, box *potential.Box, out *potential.Buffers) error {
	out.Energy.Add(math.MaxInt64)
	out.Energy.Add(math.MaxInt64)
	return nil
}

func coulombPairFrame() *potential.Frame {
	return &potential.Frame{
		Coords: []float64{0, 0, 0, 1, 0, 0},
		Params: []float64{
			1.0, 0, 0, 0,
			-1.0, 0, 0, 0,
		},
		Box: potential.NewOrthorhombicBox(20, 20, 20),
	}
}

var _ = Describe("Engine", func() {
	var pairs [][2]int
	var scales [][2]float64

	BeforeEach(func() {
		pairs = [][2]int{{0, 1}}
		scales = [][2]float64{{1, 1}}
	})

	Describe("evaluating a charged pair", func() {
		It("matches the closed-form screened Coulomb energy", func() {
			nb, err := potential.NewNonbondedPairList(pairs, scales, 2.0, 1.2, false)
			Expect(err).NotTo(HaveOccurred())

			e := engine.New(2, nb)
			res, err := e.Evaluate(coulombPairFrame())
			Expect(err).NotTo(HaveOccurred())

			want := -math.Erfc(2.0)
			Expect(res.Energy).To(BeNumerically("~", want, 1e-9))
			Expect(res.DuDP).To(HaveLen(8))
		})

		It("produces antisymmetric forces", func() {
			nb, err := potential.NewNonbondedPairList(pairs, scales, 2.0, 1.2, false)
			Expect(err).NotTo(HaveOccurred())

			e := engine.New(2, nb)
			res, err := e.Evaluate(coulombPairFrame())
			Expect(err).NotTo(HaveOccurred())

			for d := 0; d < 3; d++ {
				Expect(res.Forces[d]).To(BeNumerically("~", -res.Forces[3+d], 1e-12))
			}
		})
	})

	Describe("a negated twin term", func() {
		It("cancels its positive counterpart exactly", func() {
			nb, err := potential.NewNonbondedPairList(pairs, scales, 2.0, 1.2, false)
			Expect(err).NotTo(HaveOccurred())
			neg, err := potential.NewNonbondedPairList(pairs, scales, 2.0, 1.2, true)
			Expect(err).NotTo(HaveOccurred())

			e := engine.New(2, nb, neg)
			res, err := e.Evaluate(coulombPairFrame())
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Energy).To(BeZero())
			Expect(res.MaxForce).To(BeZero())
			for _, v := range res.DuDP {
				Expect(v).To(BeZero())
			}
		})
	})

	Describe("overflow", func() {
		It("surfaces a fatal error, never a clamped value", func() {
			e := engine.New(2, saturating{})
			_, err := e.Evaluate(coulombPairFrame())
			Expect(err).To(MatchError(potential.ErrOverflow))
		})
	})

	Describe("running a trajectory", func() {
		// two uncharged LJ particles resting at the potential minimum
		ljRestFrame := func() *potential.Frame {
			rmin := 0.3 * math.Pow(2, 1.0/6.0)
			return &potential.Frame{
				Coords: []float64{0, 0, 0, rmin, 0, 0},
				Params: []float64{
					0, 0.3, 0.5, 0,
					0, 0.3, 0.5, 0,
				},
				Box: potential.NewOrthorhombicBox(20, 20, 20),
			}
		}

		It("conserves energy for a pair at rest at the LJ minimum", func() {
			nb, err := potential.NewNonbondedPairList(pairs, scales, 2.0, 1.2, false)
			Expect(err).NotTo(HaveOccurred())

			e := engine.New(2, nb)
			vel := make([]float64, 6)
			masses := []float64{1, 1}

			result, err := e.Run(context.Background(), ljRestFrame(), vel, masses, engine.Config{Steps: 50, Dt: 0.001})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Records).To(HaveLen(50))
			Expect(result.StepsTaken).To(Equal(50))
			Expect(result.FinalEnergy).To(BeNumerically("~", -0.5, 1e-6))
			Expect(result.EnergyDrift).To(BeNumerically("<", 1e-9))
		})

		It("rejects a non-positive step count", func() {
			e := engine.New(2, saturating{})
			_, err := e.Run(context.Background(), coulombPairFrame(), make([]float64, 6), []float64{1, 1}, engine.Config{Steps: 0, Dt: 0.01})
			Expect(err).To(HaveOccurred())
		})

		It("stops when the context is cancelled", func() {
			nb, err := potential.NewNonbondedPairList(pairs, scales, 2.0, 1.2, false)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			e := engine.New(2, nb)
			_, err = e.Run(ctx, coulombPairFrame(), make([]float64, 6), []float64{1, 1}, engine.Config{Steps: 100, Dt: 0.001})
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
