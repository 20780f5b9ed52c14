package graph

import (
	"math"
	"sync"
)

// Param is an automatable node parameter. Values are sampled once per render
// block against the context clock.
type Param struct {
	ctx      *Context
	min, max float64

	mu     sync.Mutex
	value  float64
	target *targetEvent
}

type targetEvent struct {
	value        float64
	start        float64
	timeConstant float64
}

func newParam(ctx *Context, value, min, max float64) *Param {
	p := &Param{ctx: ctx, min: min, max: max}
	p.value = p.clamp(value)
	return p
}

// Value returns the parameter value at the context's current time
func (p *Param) Value() float64 {
	return p.ValueAt(p.ctx.CurrentTime())
}

// ValueAt returns the parameter value at time t (seconds)
func (p *Param) ValueAt(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAtLocked(t)
}

// SetValue sets the value immediately and cancels any pending automation
func (p *Param) SetValue(v float64) {
	p.mu.Lock()
	p.value = p.clamp(v)
	p.target = nil
	p.mu.Unlock()
}

// SetTargetAtTime starts an exponential approach towards target beginning at
// startTime with the given time constant. A non-positive time constant jumps
// to the target at startTime.
func (p *Param) SetTargetAtTime(target, startTime, timeConstant float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// the new curve starts from wherever the previous one is at startTime
	p.value = p.valueAtLocked(startTime)
	p.target = &targetEvent{
		value:        p.clamp(target),
		start:        startTime,
		timeConstant: timeConstant,
	}
}

// Target returns the value the parameter is heading towards
func (p *Param) Target() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target != nil {
		return p.target.value
	}
	return p.value
}

func (p *Param) valueAtLocked(t float64) float64 {
	ev := p.target
	if ev == nil || t < ev.start {
		return p.value
	}
	if ev.timeConstant <= 0 {
		return ev.value
	}
	v := ev.value + (p.value-ev.value)*math.Exp(-(t-ev.start)/ev.timeConstant)
	if math.Abs(v-ev.value) < 1e-9 {
		return ev.value
	}
	return v
}

func (p *Param) clamp(v float64) float64 {
	return math.Min(math.Max(v, p.min), p.max)
}
