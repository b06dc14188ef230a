package control

// Integral windup limit for the accumulated error term.
const IntegralLimit = 100.0

type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	integral float64
	prevErr  float64
}

func NewPID(kp, ki, kd float64) *PID {
	return &PID{
		Kp: kp,
		Ki: ki,
		Kd: kd,
	}
}

// Apply consumes one error sample and the elapsed seconds since the last
// sample, returning the controller output. dt <= 0 contributes no derivative.
func (p *PID) Apply(err, dt float64) float64 {
	p.integral += err * dt
	if p.integral > IntegralLimit {
		p.integral = IntegralLimit
	} else if p.integral < -IntegralLimit {
		p.integral = -IntegralLimit
	}

	derivative := 0.0
	if dt > 0 {
		derivative = (err - p.prevErr) / dt
	}

	u := p.Kp*err + p.Ki*p.integral + p.Kd*derivative

	p.prevErr = err
	return u
}

// Reset clears integral and derivative state. The owning state machine calls
// this on start, setpoint change, gain update and full reset.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
}

func (p *PID) Integral() float64 {
	return p.integral
}

func (p *PID) PrevError() float64 {
	return p.prevErr
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"kp": p.Kp,
		"ki": p.Ki,
		"kd": p.Kd,
	}
}

// SetParam adjusts a PID gain
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "kp":
		p.Kp = value
	case "ki":
		p.Ki = value
	case "kd":
		p.Kd = value
	}
}
