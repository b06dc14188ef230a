package stats

import (
	"math"

	"github.com/san-kum/aeropid/internal/history"
)

// Summary is derived from the current history window on every tick and is
// never mutated independently of it.
type Summary struct {
	AvgAngle float64 `json:"avgAngle"`
	StdAngle float64 `json:"stdAngle"`
	MinAngle float64 `json:"minAngle"`
	MaxAngle float64 `json:"maxAngle"`
	AvgError float64 `json:"avgError"`
	MaxError float64 `json:"maxError"`
	UptimeMs int64   `json:"uptimeMs"`
}

// Compute derives a summary over the window. An empty window yields the zero
// value (uptime is supplied by the caller, which owns the run clock).
func Compute(w history.Window, uptimeMs int64) Summary {
	s := Summary{UptimeMs: uptimeMs}
	if len(w.Angles) == 0 {
		return s
	}

	s.AvgAngle = mean(w.Angles)
	s.StdAngle = stddev(w.Angles, s.AvgAngle)
	s.MinAngle, s.MaxAngle = bounds(w.Angles)
	s.AvgError = mean(w.Errors)
	for _, e := range w.Errors {
		if a := math.Abs(e); a > s.MaxError {
			s.MaxError = a
		}
	}
	return s
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, avg float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func bounds(values []float64) (min, max float64) {
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
