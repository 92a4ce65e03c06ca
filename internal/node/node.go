// Package node defines the signal node contract shared by every genome: providers
// that cache one output per round, consumers that hold ordered references to
// providers, and the iterative pull evaluation that ties them together.
package node

import (
	"errors"
	"fmt"
)

var (
	ErrArity    = errors.New("input arity out of bounds")
	ErrNilInput = errors.New("nil input provider")
	ErrUnbound  = errors.New("consumer core is not bound to a node")
	ErrUnknown  = errors.New("unknown node kind")
)

type Kind string

const (
	KindSensor   Kind = "sensor"
	KindDecision Kind = "decision"
	KindFunction Kind = "function"
	KindConstant Kind = "constant"
	KindWave     Kind = "wave"
	KindDelay    Kind = "delay"
)

// Node is the lifecycle shared by providers and consumers.
type Node interface {
	Kind() Kind
	// Before clears the cached round output and marks dependents stale.
	Before()
	// After runs post-round bookkeeping such as advancing internal memory.
	After()
	// Reset clears all history and returns the node to its initial state.
	Reset()
	// Clone returns a structural copy with no inputs, consumers or owner.
	Clone() Node
	Spec() Spec
}

// Provider produces one cached output per round.
type Provider interface {
	Node
	// Compute resolves the output for the current round. It is idempotent until
	// the next Before.
	Compute() float64
	// Evaluate maps input values to an output. Implementations must not retain
	// the slice.
	Evaluate(inputs []float64) float64
	Consumers() []Consumer
	providerCore() *ProviderCore
}

// Consumer holds an ordered list of provider inputs within fixed arity bounds.
type Consumer interface {
	Node
	Inputs() []Provider
	SetInputs(inputs ...Provider) error
	Arity() (min, max int)
	// Release drops every input reference so the node can be discarded.
	Release()
	consumerCore() *ConsumerCore
}

type state uint8

const (
	stateStale state = iota
	stateComputing
	stateFinal
)

// ProviderCore carries the cache and consumer back-references of a provider.
// Back-references are non-owning and only used for traversal.
type ProviderCore struct {
	consumers []Consumer
	output    float64
	previous  float64
	state     state
}

func (c *ProviderCore) providerCore() *ProviderCore {
	return c
}

// Consumers returns distinct consumers in attachment order.
func (c *ProviderCore) Consumers() []Consumer {
	out := make([]Consumer, 0, len(c.consumers))
	seen := make(map[Consumer]struct{}, len(c.consumers))
	for _, con := range c.consumers {
		if _, ok := seen[con]; ok {
			continue
		}
		seen[con] = struct{}{}
		out = append(out, con)
	}
	return out
}

// Cached reports the cached output and whether it was finalized this round.
func (c *ProviderCore) Cached() (float64, bool) {
	return c.output, c.state == stateFinal
}

func (c *ProviderCore) Before() {
	invalidate(c)
}

func (c *ProviderCore) After() {}

func (c *ProviderCore) Reset() {
	c.output = 0
	c.previous = 0
	c.state = stateStale
}

func (c *ProviderCore) attach(con Consumer) {
	c.consumers = append(c.consumers, con)
}

// detach removes one occurrence; a consumer wired to the same provider twice
// holds two back-references.
func (c *ProviderCore) detach(con Consumer) {
	for i, existing := range c.consumers {
		if existing == con {
			c.consumers = append(c.consumers[:i], c.consumers[i+1:]...)
			return
		}
	}
}

func (c *ProviderCore) settle(value float64) {
	c.output = value
	c.state = stateFinal
}

// value is what a consumer reads: the round output once final, or the last
// round's output when the provider is still computing (a recurrent edge).
func (c *ProviderCore) value() float64 {
	if c.state == stateFinal {
		return c.output
	}
	return c.previous
}

// ConsumerCore holds the inputs of a consumer and enforces arity.
type ConsumerCore struct {
	self   Consumer
	inputs []Provider
	min    int
	max    int
}

// NewConsumerCore binds the core to the consumer embedding it.
func NewConsumerCore(self Consumer, min, max int) ConsumerCore {
	return ConsumerCore{self: self, min: min, max: max}
}

func (c *ConsumerCore) consumerCore() *ConsumerCore {
	return c
}

func (c *ConsumerCore) Inputs() []Provider {
	return append([]Provider(nil), c.inputs...)
}

func (c *ConsumerCore) Arity() (int, int) {
	return c.min, c.max
}

// SetInputs replaces the inputs. Validation happens before any back-reference
// changes.
func (c *ConsumerCore) SetInputs(inputs ...Provider) error {
	if c.self == nil {
		return ErrUnbound
	}
	if len(inputs) < c.min || len(inputs) > c.max {
		return fmt.Errorf("%w: got=%d want=[%d,%d]", ErrArity, len(inputs), c.min, c.max)
	}
	for i, in := range inputs {
		if in == nil {
			return fmt.Errorf("%w at index %d", ErrNilInput, i)
		}
	}

	for _, old := range c.inputs {
		old.providerCore().detach(c.self)
	}
	c.inputs = append([]Provider(nil), inputs...)
	for _, in := range c.inputs {
		in.providerCore().attach(c.self)
	}
	return nil
}

func (c *ConsumerCore) Release() {
	for _, old := range c.inputs {
		old.providerCore().detach(c.self)
	}
	c.inputs = nil
}
