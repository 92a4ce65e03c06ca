// Package scape holds the turn-based environments genomes are scored in.
package scape

import (
	"context"
	"errors"
)

var (
	ErrUnknownScape = errors.New("unknown scape")
	ErrInvalidScape = errors.New("invalid scape config")
	ErrBadAction    = errors.New("action out of range")
)

type Fitness float64

type Trace map[string]any

// Sensable supplies one observation per sensor slot for the current turn.
type Sensable interface {
	SensorSlots() int
	Observe(slot int) float64
}

type Agent interface {
	ID() string
	// BeginEpisode clears any state carried over from a previous episode.
	BeginEpisode()
	// Act observes env and returns the index of the action to take this turn.
	Act(ctx context.Context, env Sensable) (int, error)
}

type Scape interface {
	Name() string
	SensorSlots() int
	Actions() int
	Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error)
}
