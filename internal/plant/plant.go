package plant

import (
	"math"
	"math/rand"
)

const (
	MinAngle = -180.0
	MaxAngle = 180.0

	correctionGain   = -0.1
	oscillationScale = 0.1
	disturbanceProb  = 0.01
)

// Aeropendulum advances a single-axis simulated plant. The angle follows a
// bounded mean-reverting random walk: a proportional pull toward the setpoint
// (physical damping, separate from the PID output), uniform noise, a slow
// sinusoidal sway and rare disturbances.
type Aeropendulum struct {
	rng *rand.Rand
}

func New(seed int64) *Aeropendulum {
	return &Aeropendulum{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Step computes the next angle from the current angle, the prior error and
// the wall-clock time in milliseconds. The result is clamped to [-180, 180].
func (a *Aeropendulum) Step(currentAngle, err float64, nowMs int64) float64 {
	errorCorrection := err * correctionGain
	noise := a.uniform(-1, 1)
	oscillation := math.Sin(float64(nowMs)*0.001*2*math.Pi) * 5

	disturbance := 0.0
	if a.rng.Float64() < disturbanceProb {
		disturbance = a.uniform(-10, 10)
	}

	return Clamp(currentAngle+errorCorrection+noise+oscillation*oscillationScale+disturbance, MinAngle, MaxAngle)
}

func (a *Aeropendulum) uniform(lo, hi float64) float64 {
	return lo + a.rng.Float64()*(hi-lo)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
