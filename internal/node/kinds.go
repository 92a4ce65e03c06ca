package node

import (
	"fmt"
	"math"
)

// Sensor is a provider-only node whose value is assigned by the network once
// per round from the environment. It carries a back-pointer to its owner.
type Sensor struct {
	ProviderCore
	owner any
	value float64
}

func NewSensor() *Sensor {
	return &Sensor{}
}

func (s *Sensor) Kind() Kind                   { return KindSensor }
func (s *Sensor) Compute() float64             { return Resolve(s) }
func (s *Sensor) Evaluate(_ []float64) float64 { return s.value }
func (s *Sensor) Spec() Spec                   { return Spec{Kind: KindSensor} }
func (s *Sensor) Clone() Node                  { return NewSensor() }
func (s *Sensor) Owner() any                   { return s.owner }
func (s *Sensor) Bind(owner any)               { s.owner = owner }

// Set assigns the observed value and finalizes the sensor for this round.
func (s *Sensor) Set(value float64) {
	s.value = value
	s.settle(value)
}

func (s *Sensor) Reset() {
	s.value = 0
	s.ProviderCore.Reset()
}

// Decision is a consumer-only node with exactly one input. Its weight is the
// resolved value of that input.
type Decision struct {
	ConsumerCore
	owner any
}

func NewDecision() *Decision {
	d := &Decision{}
	d.ConsumerCore = NewConsumerCore(d, 1, 1)
	return d
}

func (d *Decision) Kind() Kind     { return KindDecision }
func (d *Decision) Before()        {}
func (d *Decision) After()         {}
func (d *Decision) Reset()         {}
func (d *Decision) Spec() Spec     { return Spec{Kind: KindDecision} }
func (d *Decision) Clone() Node    { return NewDecision() }
func (d *Decision) Owner() any     { return d.owner }
func (d *Decision) Bind(owner any) { d.owner = owner }

func (d *Decision) Input() Provider {
	if len(d.inputs) == 0 {
		return nil
	}
	return d.inputs[0]
}

// Weight resolves the input for the current round. An unwired decision weighs
// zero.
func (d *Decision) Weight() float64 {
	in := d.Input()
	if in == nil {
		return 0
	}
	return Resolve(in)
}

// Function applies a registered transform to its inputs.
type Function struct {
	ProviderCore
	ConsumerCore
	transform Transform
}

func NewFunction(name string) (*Function, error) {
	transform, err := GetTransform(name)
	if err != nil {
		return nil, err
	}
	return newFunction(transform), nil
}

// MustFunction is NewFunction for built-in transform names.
func MustFunction(name string) *Function {
	f, err := NewFunction(name)
	if err != nil {
		panic(err)
	}
	return f
}

func newFunction(transform Transform) *Function {
	f := &Function{transform: transform}
	f.ConsumerCore = NewConsumerCore(f, transform.MinInputs, transform.MaxInputs)
	return f
}

func (f *Function) Kind() Kind       { return KindFunction }
func (f *Function) Compute() float64 { return Resolve(f) }
func (f *Function) Transform() string {
	return f.transform.Name
}

func (f *Function) Evaluate(inputs []float64) float64 {
	if len(inputs) == 0 {
		return 0
	}
	return Saturation(f.transform.Func(inputs))
}

func (f *Function) Spec() Spec {
	return Spec{Kind: KindFunction, Transform: f.transform.Name}
}

func (f *Function) Clone() Node {
	return newFunction(f.transform)
}

// Constant emits a fixed value.
type Constant struct {
	ProviderCore
	Value float64
}

func NewConstant(value float64) *Constant {
	return &Constant{Value: value}
}

func (c *Constant) Kind() Kind                   { return KindConstant }
func (c *Constant) Compute() float64             { return Resolve(c) }
func (c *Constant) Evaluate(_ []float64) float64 { return c.Value }
func (c *Constant) Spec() Spec                   { return Spec{Kind: KindConstant, Params: []float64{c.Value}} }
func (c *Constant) Clone() Node                  { return NewConstant(c.Value) }

// Wave is a sine generator whose phase advances once per round.
type Wave struct {
	ProviderCore
	Frequency float64
	phase     int
}

func NewWave(frequency float64) *Wave {
	return &Wave{Frequency: frequency}
}

func (w *Wave) Kind() Kind       { return KindWave }
func (w *Wave) Compute() float64 { return Resolve(w) }
func (w *Wave) Spec() Spec       { return Spec{Kind: KindWave, Params: []float64{w.Frequency}} }
func (w *Wave) Clone() Node      { return NewWave(w.Frequency) }

func (w *Wave) Evaluate(_ []float64) float64 {
	return math.Sin(float64(w.phase) * w.Frequency)
}

func (w *Wave) After() {
	w.phase++
}

func (w *Wave) Reset() {
	w.phase = 0
	w.ProviderCore.Reset()
}

// Delay outputs the value its input had in the previous round. It reads the
// input in After, so a cycle through a delay never recurses while resolving.
type Delay struct {
	ProviderCore
	ConsumerCore
	Initial float64
	memory  float64
}

func NewDelay(initial float64) *Delay {
	d := &Delay{Initial: initial, memory: initial}
	d.ConsumerCore = NewConsumerCore(d, 1, 1)
	return d
}

func (d *Delay) deferInputs() {}

func (d *Delay) Kind() Kind                   { return KindDelay }
func (d *Delay) Compute() float64             { return Resolve(d) }
func (d *Delay) Evaluate(_ []float64) float64 { return d.memory }
func (d *Delay) Spec() Spec                   { return Spec{Kind: KindDelay, Params: []float64{d.Initial}} }
func (d *Delay) Clone() Node                  { return NewDelay(d.Initial) }

func (d *Delay) After() {
	if len(d.inputs) == 0 {
		return
	}
	d.memory = Resolve(d.inputs[0])
}

func (d *Delay) Reset() {
	d.memory = d.Initial
	d.ProviderCore.Reset()
}

// Spec is the structural description of a node used for hashing and codecs.
type Spec struct {
	Kind      Kind      `json:"kind"`
	Transform string    `json:"transform,omitempty"`
	Params    []float64 `json:"params,omitempty"`
}

// FromSpec builds an unwired node from its structural description.
func FromSpec(spec Spec) (Node, error) {
	param := func(name string) (float64, error) {
		if len(spec.Params) != 1 {
			return 0, fmt.Errorf("%s node requires one param, got %d", name, len(spec.Params))
		}
		return spec.Params[0], nil
	}

	switch spec.Kind {
	case KindSensor:
		return NewSensor(), nil
	case KindDecision:
		return NewDecision(), nil
	case KindFunction:
		f, err := NewFunction(spec.Transform)
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindConstant:
		v, err := param("constant")
		if err != nil {
			return nil, err
		}
		return NewConstant(v), nil
	case KindWave:
		v, err := param("wave")
		if err != nil {
			return nil, err
		}
		return NewWave(v), nil
	case KindDelay:
		v, err := param("delay")
		if err != nil {
			return nil, err
		}
		return NewDelay(v), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, spec.Kind)
	}
}
