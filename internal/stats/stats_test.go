package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/san-kum/aeropid/internal/history"
)

func window(angles, errors []float64) history.Window {
	times := make([]time.Time, len(angles))
	return history.Window{Angles: angles, Errors: errors, Times: times}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(history.Window{}, 1234)
	if s.AvgAngle != 0 || s.StdAngle != 0 || s.MinAngle != 0 || s.MaxAngle != 0 {
		t.Error("empty window should yield zero stats")
	}
	if s.UptimeMs != 1234 {
		t.Errorf("uptime should pass through, got %d", s.UptimeMs)
	}
}

func TestComputeBasic(t *testing.T) {
	s := Compute(window([]float64{10, 20, 30}, []float64{-5, 0, 5}), 0)

	if math.Abs(s.AvgAngle-20) > 1e-12 {
		t.Errorf("expected avg 20, got %f", s.AvgAngle)
	}
	if s.MinAngle != 10 || s.MaxAngle != 30 {
		t.Errorf("expected bounds [10, 30], got [%f, %f]", s.MinAngle, s.MaxAngle)
	}
	if math.Abs(s.AvgError) > 1e-12 {
		t.Errorf("expected avg error 0, got %f", s.AvgError)
	}
	if s.MaxError != 5 {
		t.Errorf("max error is the largest magnitude, got %f", s.MaxError)
	}
}

func TestStdDev(t *testing.T) {
	s := Compute(window([]float64{2, 4, 4, 4, 5, 5, 7, 9}, make([]float64, 8)), 0)
	if math.Abs(s.StdAngle-2.0) > 1e-12 {
		t.Errorf("expected population stddev 2.0, got %f", s.StdAngle)
	}
}

func TestSingleSample(t *testing.T) {
	s := Compute(window([]float64{42}, []float64{-3}), 0)
	if s.StdAngle != 0 {
		t.Errorf("single sample stddev should be 0, got %f", s.StdAngle)
	}
	if s.MinAngle != 42 || s.MaxAngle != 42 || s.AvgAngle != 42 {
		t.Error("single sample: min == avg == max")
	}
	if s.MaxError != 3 {
		t.Errorf("expected max error 3, got %f", s.MaxError)
	}
}

func TestInvariantsOnRandomWindows(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(200)
		angles := make([]float64, n)
		errors := make([]float64, n)
		for i := range angles {
			angles[i] = rng.Float64()*360 - 180
			errors[i] = rng.Float64()*100 - 50
		}

		s := Compute(window(angles, errors), 0)
		if s.MinAngle > s.AvgAngle || s.AvgAngle > s.MaxAngle {
			t.Fatalf("min <= avg <= max violated: %f %f %f", s.MinAngle, s.AvgAngle, s.MaxAngle)
		}
		if s.StdAngle < 0 {
			t.Fatalf("stddev must be non-negative, got %f", s.StdAngle)
		}
		if s.MaxError < 0 {
			t.Fatalf("max error must be non-negative, got %f", s.MaxError)
		}
	}
}
