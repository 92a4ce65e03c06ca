// Package agent adapts networks to the scape turn protocol.
package agent

import (
	"context"
	"errors"
	"fmt"

	"sigevo/internal/network"
	"sigevo/internal/scape"
)

var ErrActionMismatch = errors.New("scape actions do not match network decisions")

// Runner plays a network in a scape: every turn runs one round and takes the
// action of the top-ordered decision.
type Runner struct {
	id     string
	net    *network.Network
	last   []network.Choice
	rounds int
}

func NewRunner(id string, net *network.Network) (*Runner, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if net == nil {
		return nil, fmt.Errorf("agent network is required")
	}
	return &Runner{id: id, net: net}, nil
}

func (r *Runner) ID() string                { return r.id }
func (r *Runner) Network() *network.Network { return r.net }
func (r *Runner) Rounds() int               { return r.rounds }

func (r *Runner) LastChoices() []network.Choice {
	return append([]network.Choice(nil), r.last...)
}

// Compatible checks that s offers one action per decision and one observation
// per sensor.
func (r *Runner) Compatible(s scape.Scape) error {
	if s.Actions() != r.net.DecisionCount() {
		return fmt.Errorf("%w: scape %s has %d actions, network has %d decisions", ErrActionMismatch, s.Name(), s.Actions(), r.net.DecisionCount())
	}
	if s.SensorSlots() != r.net.SensorCount() {
		return fmt.Errorf("%w: scape %s has %d slots, network has %d sensors", network.ErrSensorCount, s.Name(), s.SensorSlots(), r.net.SensorCount())
	}
	return nil
}

func (r *Runner) BeginEpisode() {
	r.net.ResetForNewEpisode()
	r.last = nil
	r.rounds = 0
}

func (r *Runner) Act(ctx context.Context, env scape.Sensable) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	choices, err := r.net.RunRound(env)
	if err != nil {
		return 0, err
	}
	r.last = choices
	r.rounds++
	return choices[0].Decision, nil
}

// Evaluate scores the network in s after checking the layouts agree.
func (r *Runner) Evaluate(ctx context.Context, s scape.Scape) (scape.Fitness, scape.Trace, error) {
	if err := r.Compatible(s); err != nil {
		return 0, nil, err
	}
	return s.Evaluate(ctx, r)
}
