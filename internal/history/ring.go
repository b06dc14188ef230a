package history

import "time"

const DefaultMaxPoints = 1000

// Ring is a fixed-capacity buffer of angle/error/timestamp samples. The three
// sequences are index-aligned and always the same length; when full, the
// oldest sample is overwritten. Storage is a preallocated arena with a head
// index, so appends never reallocate.
type Ring struct {
	angles []float64
	errors []float64
	times  []time.Time
	head   int
	length int
	cap    int
}

// Window is a copied-out, insertion-ordered view of the ring contents.
type Window struct {
	Angles []float64
	Errors []float64
	Times  []time.Time
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultMaxPoints
	}
	return &Ring{
		angles: make([]float64, capacity),
		errors: make([]float64, capacity),
		times:  make([]time.Time, capacity),
		cap:    capacity,
	}
}

// Push appends one sample, evicting the oldest when the ring is full.
func (r *Ring) Push(angle, err float64, t time.Time) {
	idx := (r.head + r.length) % r.cap
	r.angles[idx] = angle
	r.errors[idx] = err
	r.times[idx] = t

	if r.length < r.cap {
		r.length++
	} else {
		r.head = (r.head + 1) % r.cap
	}
}

func (r *Ring) Len() int {
	return r.length
}

func (r *Ring) Cap() int {
	return r.cap
}

func (r *Ring) Clear() {
	r.head = 0
	r.length = 0
}

// Snapshot copies out the full window, oldest first.
func (r *Ring) Snapshot() Window {
	return r.copyRange(0, r.length)
}

// Recent copies out the newest n samples, oldest first. n <= 0 or n >= Len
// returns the full window.
func (r *Ring) Recent(n int) Window {
	if n <= 0 || n > r.length {
		n = r.length
	}
	return r.copyRange(r.length-n, r.length)
}

// Range copies out samples with timestamps in [from, to]. Zero bounds are
// open on that side.
func (r *Ring) Range(from, to time.Time) Window {
	w := Window{
		Angles: make([]float64, 0, r.length),
		Errors: make([]float64, 0, r.length),
		Times:  make([]time.Time, 0, r.length),
	}
	for i := 0; i < r.length; i++ {
		idx := (r.head + i) % r.cap
		ts := r.times[idx]
		if !from.IsZero() && ts.Before(from) {
			continue
		}
		if !to.IsZero() && ts.After(to) {
			continue
		}
		w.Angles = append(w.Angles, r.angles[idx])
		w.Errors = append(w.Errors, r.errors[idx])
		w.Times = append(w.Times, ts)
	}
	return w
}

func (r *Ring) copyRange(lo, hi int) Window {
	n := hi - lo
	w := Window{
		Angles: make([]float64, n),
		Errors: make([]float64, n),
		Times:  make([]time.Time, n),
	}
	for i := 0; i < n; i++ {
		idx := (r.head + lo + i) % r.cap
		w.Angles[i] = r.angles[idx]
		w.Errors[i] = r.errors[idx]
		w.Times[i] = r.times[idx]
	}
	return w
}
