package risk

import (
	"math"
	"math/rand"
	"testing"
)

func TestGaussianDiskCenteredIsotropic(t *testing.T) {
	// For an isotropic Gaussian centered on the disk the integral has a
	// closed form: 1 - exp(-R²/2σ²).
	cases := []struct {
		sigma, radius float64
	}{
		{1.0, 0.5},
		{1.0, 1.0},
		{1.0, 2.0},
		{0.3, 0.1},
	}
	for _, tc := range cases {
		want := 1 - math.Exp(-tc.radius*tc.radius/(2*tc.sigma*tc.sigma))
		got := gaussianDiskProbability(0, 0, tc.sigma*tc.sigma, tc.sigma*tc.sigma, 0, tc.radius)
		if rel := math.Abs(got-want) / want; rel > 1e-6 {
			t.Errorf("sigma=%g radius=%g: got %g want %g (rel err %g)", tc.sigma, tc.radius, got, want, rel)
		}
	}
}

func TestGaussianDiskMatchesMonteCarlo(t *testing.T) {
	// Anisotropic, correlated, offset: the regime the closed form cannot
	// check. The quadrature must sit within 5% of a seeded sampling estimate.
	const (
		mx, my  = 0.2, -0.1
		sxx     = 0.09
		syy     = 0.01
		sxy     = 0.015
		radius  = 0.12
		samples = 400000
	)
	got := gaussianDiskProbability(mx, my, sxx, syy, sxy, radius)

	rng := rand.New(rand.NewSource(42))
	l11 := math.Sqrt(sxx)
	l21 := sxy / l11
	l22 := math.Sqrt(syy - l21*l21)
	hits := 0
	for i := 0; i < samples; i++ {
		z1, z2 := rng.NormFloat64(), rng.NormFloat64()
		x := mx + l11*z1
		y := my + l21*z1 + l22*z2
		if x*x+y*y <= radius*radius {
			hits++
		}
	}
	ref := float64(hits) / float64(samples)
	if ref == 0 {
		t.Fatal("monte-carlo reference produced no hits; parameters are off")
	}
	if rel := math.Abs(got-ref) / ref; rel > 0.05 {
		t.Fatalf("quadrature %g vs monte-carlo %g: relative error %g", got, ref, rel)
	}
}

func TestGaussianDiskMonotoneInMiss(t *testing.T) {
	const (
		variance = 0.25
		radius   = 0.01
	)
	last := math.Inf(1)
	for _, miss := range []float64{0, 0.25, 0.5, 1, 2, 5} {
		pc := gaussianDiskProbability(miss, 0, variance, variance, 0, radius)
		if pc < 0 || pc > 1 {
			t.Fatalf("miss %g: pc %g outside [0,1]", miss, pc)
		}
		if pc > last {
			t.Fatalf("miss %g: pc %g rose above %g", miss, pc, last)
		}
		last = pc
	}
}

func TestGaussianDiskDilutesWithCovariance(t *testing.T) {
	// Centered case: inflating the covariance spreads probability away from
	// the hard body, so Pc must fall.
	const radius = 0.01
	last := math.Inf(1)
	for _, sigma := range []float64{0.05, 0.1, 0.5, 1, 2} {
		pc := gaussianDiskProbability(0, 0, sigma*sigma, sigma*sigma, 0, radius)
		if pc >= last {
			t.Fatalf("sigma %g: pc %g did not fall below %g", sigma, pc, last)
		}
		last = pc
	}
}

func TestGaussianDiskDegenerateInputs(t *testing.T) {
	if pc := gaussianDiskProbability(0, 0, 1, 1, 0, 0); pc != 0 {
		t.Errorf("zero radius: pc = %g, want 0", pc)
	}
	if pc := gaussianDiskProbability(0, 0, 1, 1, 1.5, 0.1); pc != 0 {
		t.Errorf("non-positive-definite covariance: pc = %g, want 0", pc)
	}
	if pc := gaussianDiskProbability(0, 0, 0, 1, 0, 0.1); pc != 0 {
		t.Errorf("zero variance: pc = %g, want 0", pc)
	}
}
