// Package channel models the entanglement sources that feed the switch: when
// each pair is produced, and the noise its leaf half picks up on the way.
package channel

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// DelayModel generates the time between consecutive pair productions.
type DelayModel interface {
	// NextDelay returns the next delay in ticks. Always returns a positive value (>= 1).
	NextDelay(rng *rand.Rand) int64
}

// FixedDelay produces a pair every Ticks ticks.
type FixedDelay struct {
	Ticks int64
}

func (d *FixedDelay) NextDelay(_ *rand.Rand) int64 {
	if d.Ticks < 1 {
		return 1
	}
	return d.Ticks
}

// ExponentialDelay generates exponentially-distributed delays (a Poisson source).
type ExponentialDelay struct {
	ratePerTick float64
}

// NewExponentialDelay creates a Poisson source producing rateHz pairs per second on average.
func NewExponentialDelay(rateHz float64) *ExponentialDelay {
	return &ExponentialDelay{ratePerTick: floorRate(rateHz) / 1e9}
}

func (d *ExponentialDelay) NextDelay(rng *rand.Rand) int64 {
	return toTicks(rng.ExpFloat64() / d.ratePerTick)
}

// GammaDelay generates Gamma-distributed delays. CV > 1 gives bursty sources,
// CV < 1 sources more regular than Poisson.
type GammaDelay struct {
	shape float64 // 1/CV²
	scale float64 // CV²/rate in ticks
}

func (d *GammaDelay) NextDelay(rng *rand.Rand) int64 {
	return toTicks(gammaRand(rng, d.shape, d.scale))
}

// maxDelay keeps sampled delays representable when added to the clock.
const maxDelay = math.MaxInt64 / 4

// toTicks converts a sampled delay to ticks, clamped to [1, maxDelay].
func toTicks(delay float64) int64 {
	if delay >= maxDelay {
		return maxDelay
	}
	if delay < 1 {
		return 1
	}
	return int64(delay)
}

// gammaRand samples from Gamma(shape, scale) using Marsaglia-Tsang's method.
// For shape < 1: Gamma(shape) = Gamma(shape+1) * U^(1/shape).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()

		// squeeze test
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// Arrival processes accepted by NewDelayModel.
const (
	ProcessExponential = "exponential"
	ProcessFixed       = "fixed"
	ProcessGamma       = "gamma"
)

// IsValidProcess reports whether name is a known arrival process.
func IsValidProcess(name string) bool {
	switch name {
	case ProcessExponential, ProcessFixed, ProcessGamma:
		return true
	}
	return false
}

// NewDelayModel creates a DelayModel for a source producing rateHz pairs per
// second. fixedTicks is used by the fixed process only, cv by the gamma process only.
func NewDelayModel(process string, rateHz float64, fixedTicks int64, cv float64) (DelayModel, error) {
	switch process {
	case ProcessExponential:
		return NewExponentialDelay(rateHz), nil
	case ProcessFixed:
		if fixedTicks <= 0 {
			return nil, fmt.Errorf("fixed delay must be > 0 ticks, got %d", fixedTicks)
		}
		return &FixedDelay{Ticks: fixedTicks}, nil
	case ProcessGamma:
		if cv <= 0 {
			cv = 1.0
		}
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("Gamma shape %.4f (CV=%.1f) is very small; falling back to exponential", shape, cv)
			return NewExponentialDelay(rateHz), nil
		}
		mean := 1e9 / floorRate(rateHz)
		return &GammaDelay{shape: shape, scale: mean * cv * cv}, nil
	}
	return nil, fmt.Errorf("unknown arrival process %q (want %s, %s or %s)",
		process, ProcessExponential, ProcessFixed, ProcessGamma)
}

// floorRate avoids division by zero for sources that practically never fire.
func floorRate(rateHz float64) float64 {
	if rateHz < 1e-15 {
		return 1e-15
	}
	return rateHz
}
