// Package random provides the seeded, reproducible sampler behind the
// $random builtin. Values follow a bounded skew-normal distribution whose
// long-run mean tracks the requested target.
package random

import (
	"fmt"
	"math"
	"math/rand"
)

// DefaultSeed is the engine-wide seed when none is configured. Fixed so
// that simulation reports are reproducible by default.
const DefaultSeed = 42

const batchSize = 1000

// Source hands out skewed samples. One generator is kept per
// (min, max, mean) triple so repeated calls with the same bounds draw from
// a single stream, mirroring how models reuse a distribution across
// periods.
type Source struct {
	rng        *rand.Rand
	generators map[string]*generator
}

// NewSource creates a source seeded with seed.
func NewSource(seed int64) *Source {
	return &Source{
		rng:        rand.New(rand.NewSource(seed)),
		generators: make(map[string]*generator),
	}
}

// Skewed returns the next sample in [min, max] targeting the given mean.
func (s *Source) Skewed(min, max, mean float64) (float64, error) {
	if !(min < max) {
		return 0, fmt.Errorf("skewed sample: min %v must be below max %v", min, max)
	}
	if mean < min || mean > max {
		return 0, fmt.Errorf("skewed sample: mean %v outside [%v, %v]", mean, min, max)
	}
	key := fmt.Sprintf("%v_%v_%v", min, max, mean)
	g, ok := s.generators[key]
	if !ok {
		g = newGenerator(s.rng, min, max, mean)
		s.generators[key] = g
	}
	return g.next(), nil
}

// generator produces batches of skew-normal samples clipped to
// [min, max] and shifted so each batch's mean matches the target.
type generator struct {
	rng            *rand.Rand
	min, max, mean float64

	// Skew-normal parameters derived from where the mean sits in the
	// range: symmetric at the midpoint, right-skewed below it,
	// left-skewed above it.
	loc, scale, alpha float64

	values []float64
	index  int
}

func newGenerator(rng *rand.Rand, min, max, mean float64) *generator {
	span := max - min
	mid := min + span/2
	alpha := 8 * (mid - mean) / span
	scale := span / 6

	// Place loc so the analytic skew-normal mean lands on the target:
	// E[X] = loc + scale·δ·√(2/π), δ = α/√(1+α²).
	delta := alpha / math.Sqrt(1+alpha*alpha)
	loc := mean - scale*delta*math.Sqrt(2/math.Pi)

	g := &generator{
		rng:   rng,
		min:   min,
		max:   max,
		mean:  mean,
		loc:   loc,
		scale: scale,
		alpha: alpha,
	}
	g.refill()
	return g
}

func (g *generator) next() float64 {
	if g.index >= len(g.values) {
		g.refill()
	}
	v := g.values[g.index]
	g.index++
	return v
}

// refill draws a fresh batch, clips it to the bounds, and shifts it so the
// batch mean matches the target before a final clip.
func (g *generator) refill() {
	values := make([]float64, batchSize)
	sum := 0.0
	for i := range values {
		v := clamp(g.loc+g.scale*g.sampleSkewNormal(), g.min, g.max)
		values[i] = v
		sum += v
	}
	shift := g.mean - sum/float64(len(values))
	for i, v := range values {
		values[i] = clamp(v+shift, g.min, g.max)
	}
	g.values = values
	g.index = 0
}

// sampleSkewNormal draws a standard skew-normal variate with shape alpha
// using the conditioning construction: from correlated normals (u0, u1)
// with correlation δ, u1 given u0 ≥ 0 is SN(α).
func (g *generator) sampleSkewNormal() float64 {
	delta := g.alpha / math.Sqrt(1+g.alpha*g.alpha)
	u0 := g.rng.NormFloat64()
	v := g.rng.NormFloat64()
	u1 := delta*u0 + math.Sqrt(1-delta*delta)*v
	if u0 >= 0 {
		return u1
	}
	return -u1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
