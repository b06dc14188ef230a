package system

import (
	"sync"
	"time"

	"github.com/san-kum/aeropid/internal/control"
	"github.com/san-kum/aeropid/internal/history"
	"github.com/san-kum/aeropid/internal/plant"
	"github.com/san-kum/aeropid/internal/stats"
)

const (
	DefaultReference = 45.0

	calibrationDelay = 2 * time.Second
)

// Command names accepted by Execute.
const (
	CmdStart          = "startSystem"
	CmdStop           = "stopSystem"
	CmdEmergencyStop  = "emergencyStop"
	CmdSetTargetAngle = "setTargetAngle"
	CmdReset          = "resetSystem"
	CmdCalibrate      = "calibrate"
	CmdSetPID         = "setPID"
)

// PIDState is the externally visible controller state.
type PIDState struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	Integral      float64 `json:"integral"`
	PreviousError float64 `json:"previousError"`
}

// Status is a consistent snapshot of the shared state, safe to serialize
// outside the lock.
type Status struct {
	CurrentAngle   float64       `json:"currentAngle"`
	ReferenceAngle float64       `json:"referenceAngle"`
	Error          float64       `json:"error"`
	IsRunning      bool          `json:"isRunning"`
	IsConnected    bool          `json:"isConnected"`
	PIDOutput      float64       `json:"pidOutput"`
	PID            PIDState      `json:"pid"`
	Stats          stats.Summary `json:"stats"`
}

// System owns the shared mutable state: the plant angle, the setpoint, the
// controller and the history ring. All mutation goes through its mutex; the
// tick and every command apply atomically with respect to each other.
type System struct {
	mu sync.Mutex

	currentAngle   float64
	referenceAngle float64
	trackingErr    float64
	isRunning      bool
	isConnected    bool

	pid       *control.PID
	pidOutput float64
	model     *plant.Aeropendulum
	ring      *history.Ring
	summary   stats.Summary

	defaultReference float64
	startedAt        time.Time
	uptimeMs         int64

	calDelay time.Duration
	now      func() time.Time
}

type Options struct {
	Reference float64
	Kp        float64
	Ki        float64
	Kd        float64
	MaxPoints int
	Seed      int64
}

func New(opts Options) *System {
	ref := opts.Reference
	if ref < plant.MinAngle || ref > plant.MaxAngle {
		ref = DefaultReference
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &System{
		referenceAngle:   ref,
		trackingErr:      -ref,
		pid:              control.NewPID(opts.Kp, opts.Ki, opts.Kd),
		model:            plant.New(seed),
		ring:             history.NewRing(opts.MaxPoints),
		defaultReference: ref,
		calDelay:         calibrationDelay,
		now:              time.Now,
	}
}

// Execute runs one command against the state machine. The returned Status is
// the state after the command applied; a nil error means success.
func (s *System) Execute(command string, value any) (Status, error) {
	switch command {
	case CmdStart:
		return s.start()
	case CmdStop:
		return s.stop()
	case CmdEmergencyStop:
		return s.emergencyStop()
	case CmdSetTargetAngle:
		return s.setTargetAngle(value)
	case CmdReset:
		return s.reset()
	case CmdCalibrate:
		return s.calibrate()
	case CmdSetPID:
		return s.setPID(value)
	default:
		return s.Snapshot(), cmdErr(command, ErrInvalidCommand)
	}
}

func (s *System) start() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return s.snapshotLocked(), cmdErr(CmdStart, ErrAlreadyRunning)
	}
	s.isRunning = true
	s.isConnected = true
	s.startedAt = s.now()
	s.pid.Reset()
	return s.snapshotLocked(), nil
}

func (s *System) stop() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return s.snapshotLocked(), cmdErr(CmdStop, ErrAlreadyStopped)
	}
	s.isRunning = false
	return s.snapshotLocked(), nil
}

func (s *System) emergencyStop() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isRunning = false
	s.isConnected = false
	s.pid.Reset()
	return s.snapshotLocked(), nil
}

func (s *System) setTargetAngle(value any) (Status, error) {
	v, ok := toFloat(value)
	if !ok || v < plant.MinAngle || v > plant.MaxAngle {
		return s.Snapshot(), cmdErr(CmdSetTargetAngle, ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.referenceAngle = v
	s.trackingErr = s.currentAngle - s.referenceAngle
	s.pid.Reset()
	return s.snapshotLocked(), nil
}

func (s *System) reset() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentAngle = 0
	s.referenceAngle = s.defaultReference
	s.trackingErr = -s.defaultReference
	s.isRunning = false
	s.pidOutput = 0
	s.pid.Reset()
	s.ring.Clear()
	s.summary = stats.Summary{}
	s.startedAt = time.Time{}
	s.uptimeMs = 0
	return s.snapshotLocked(), nil
}

// calibrate models a slow calibration routine. The delay runs off-lock so the
// tick loop and other commands keep going; the result applies back through
// the serialized path on completion.
func (s *System) calibrate() (Status, error) {
	go func() {
		time.Sleep(s.calDelay)
		s.mu.Lock()
		s.isConnected = true
		s.mu.Unlock()
	}()
	return s.Snapshot(), nil
}

func (s *System) setPID(value any) (Status, error) {
	params, ok := value.(map[string]any)
	if !ok {
		return s.Snapshot(), cmdErr(CmdSetPID, ErrNoValidParams)
	}

	gains := make(map[string]float64, 3)
	for _, name := range []string{"kp", "ki", "kd"} {
		raw, present := params[name]
		if !present {
			continue
		}
		v, numeric := toFloat(raw)
		if !numeric || v < 0 {
			continue
		}
		gains[name] = v
	}
	if len(gains) == 0 {
		return s.Snapshot(), cmdErr(CmdSetPID, ErrNoValidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, v := range gains {
		s.pid.SetParam(name, v)
	}
	s.pid.Reset()
	return s.snapshotLocked(), nil
}

// UpdatePID merges already-validated gains; it backs the REST PID endpoint
// and follows the same rules as the setPID command.
func (s *System) UpdatePID(params map[string]any) (PIDState, error) {
	st, err := s.setPID(params)
	return st.PID, err
}

// Tick advances the plant by one period. It is a no-op while the system is
// stopped: no history append, no stats, no snapshot for broadcast.
func (s *System) Tick(now time.Time, dt float64) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return Status{}, false
	}

	s.currentAngle = s.model.Step(s.currentAngle, s.trackingErr, now.UnixMilli())
	s.trackingErr = s.currentAngle - s.referenceAngle

	// The controller output is reported for observability only; the plant
	// self-corrects and the loop is intentionally left open here.
	s.pidOutput = s.pid.Apply(s.trackingErr, dt)

	s.ring.Push(s.currentAngle, s.trackingErr, now)
	s.uptimeMs = now.Sub(s.startedAt).Milliseconds()
	s.summary = stats.Compute(s.ring.Snapshot(), s.uptimeMs)

	return s.snapshotLocked(), true
}

// Snapshot returns a consistent copy of the current state.
func (s *System) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// HistoryData answers a history query. A positive limit returns the newest
// samples; otherwise a from/to range applies; with neither, the full window.
func (s *System) HistoryData(limit int, from, to time.Time) history.Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > 0 {
		return s.ring.Recent(limit)
	}
	if !from.IsZero() || !to.IsZero() {
		return s.ring.Range(from, to)
	}
	return s.ring.Snapshot()
}

func (s *System) snapshotLocked() Status {
	return Status{
		CurrentAngle:   s.currentAngle,
		ReferenceAngle: s.referenceAngle,
		Error:          s.trackingErr,
		IsRunning:      s.isRunning,
		IsConnected:    s.isConnected,
		PIDOutput:      s.pidOutput,
		PID: PIDState{
			Kp:            s.pid.Kp,
			Ki:            s.pid.Ki,
			Kd:            s.pid.Kd,
			Integral:      s.pid.Integral(),
			PreviousError: s.pid.PrevError(),
		},
		Stats: s.summary,
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
