package scape

import (
	"context"
	"fmt"
	"math/rand"
)

const (
	ActionNorth = iota
	ActionEast
	ActionSouth
	ActionWest
	ActionStay

	ForageActions = 5
	ForageSensors = 4
)

const (
	forageMoveCost = 1.0
	forageStayCost = 0.5
	forageFoodGain = 6.0
	forageSurvival = 0.01
)

// Forage is a torus grid with food pellets. The agent senses the signed
// offset to the nearest pellet, its energy and a constant bias, and moves one
// cell per turn. Every episode with the same seed lays out the same food, so
// genomes are compared on equal terms.
type Forage struct {
	Width  int
	Height int
	Food   int
	Turns  int
	Energy float64
	Seed   int64
}

func DefaultForage() Forage {
	return Forage{Width: 12, Height: 12, Food: 6, Turns: 60, Energy: 20, Seed: 1}
}

func (f Forage) Name() string {
	return "forage"
}

func (f Forage) SensorSlots() int { return ForageSensors }
func (f Forage) Actions() int     { return ForageActions }

func (f Forage) Validate() error {
	if f.Width < 2 || f.Height < 2 {
		return fmt.Errorf("%w: forage grid %dx%d", ErrInvalidScape, f.Width, f.Height)
	}
	if f.Food < 1 || f.Food >= f.Width*f.Height {
		return fmt.Errorf("%w: forage food=%d on %d cells", ErrInvalidScape, f.Food, f.Width*f.Height)
	}
	if f.Turns < 1 {
		return fmt.Errorf("%w: forage turns=%d", ErrInvalidScape, f.Turns)
	}
	if !(f.Energy > 0) {
		return fmt.Errorf("%w: forage energy=%f", ErrInvalidScape, f.Energy)
	}
	return nil
}

func (f Forage) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	if err := f.Validate(); err != nil {
		return 0, nil, err
	}
	w := newForageWorld(f)
	agent.BeginEpisode()

	for w.turns < f.Turns && w.energy > 0 {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		action, err := agent.Act(ctx, w)
		if err != nil {
			return 0, nil, err
		}
		if action < 0 || action >= ForageActions {
			return 0, nil, fmt.Errorf("%w: forage action %d", ErrBadAction, action)
		}
		w.step(action)
	}

	fitness := float64(w.eaten) + forageSurvival*float64(w.turns)
	return Fitness(fitness), Trace{
		"eaten":  w.eaten,
		"turns":  w.turns,
		"energy": w.energy,
		"moves":  w.moves,
	}, nil
}

type cell struct {
	x int
	y int
}

type forageWorld struct {
	cfg     Forage
	rng     *rand.Rand
	agent   cell
	food    []cell
	nearest cell
	energy  float64
	eaten   int
	turns   int
	moves   int
}

func newForageWorld(cfg Forage) *forageWorld {
	w := &forageWorld{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		agent:  cell{x: cfg.Width / 2, y: cfg.Height / 2},
		energy: cfg.Energy,
	}
	for len(w.food) < cfg.Food {
		w.food = append(w.food, w.freeCell())
	}
	w.locateNearest()
	return w
}

func (w *forageWorld) SensorSlots() int { return ForageSensors }

func (w *forageWorld) Observe(slot int) float64 {
	switch slot {
	case 0:
		return torusDelta(w.agent.x, w.nearest.x, w.cfg.Width) / float64(w.cfg.Width/2)
	case 1:
		return torusDelta(w.agent.y, w.nearest.y, w.cfg.Height) / float64(w.cfg.Height/2)
	case 2:
		return w.energy / w.cfg.Energy
	case 3:
		return 1
	default:
		return 0
	}
}

func (w *forageWorld) step(action int) {
	w.turns++
	switch action {
	case ActionNorth:
		w.agent.y = wrap(w.agent.y-1, w.cfg.Height)
	case ActionEast:
		w.agent.x = wrap(w.agent.x+1, w.cfg.Width)
	case ActionSouth:
		w.agent.y = wrap(w.agent.y+1, w.cfg.Height)
	case ActionWest:
		w.agent.x = wrap(w.agent.x-1, w.cfg.Width)
	}
	if action == ActionStay {
		w.energy -= forageStayCost
	} else {
		w.energy -= forageMoveCost
		w.moves++
	}

	for i, f := range w.food {
		if f != w.agent {
			continue
		}
		w.eaten++
		w.energy += forageFoodGain
		w.food[i] = w.freeCell()
		break
	}
	w.locateNearest()
}

// freeCell draws a cell holding neither the agent nor food.
func (w *forageWorld) freeCell() cell {
	for {
		c := cell{x: w.rng.Intn(w.cfg.Width), y: w.rng.Intn(w.cfg.Height)}
		if c == w.agent {
			continue
		}
		taken := false
		for _, f := range w.food {
			if f == c {
				taken = true
				break
			}
		}
		if !taken {
			return c
		}
	}
}

func (w *forageWorld) locateNearest() {
	best := -1.0
	for _, f := range w.food {
		dx := torusDelta(w.agent.x, f.x, w.cfg.Width)
		dy := torusDelta(w.agent.y, f.y, w.cfg.Height)
		d := abs(dx) + abs(dy)
		if best < 0 || d < best {
			best = d
			w.nearest = f
		}
	}
}

// torusDelta is the signed shortest offset from a to b on a ring of size n.
func torusDelta(a, b, n int) float64 {
	d := wrap(b-a, n)
	if d > n/2 {
		d -= n
	}
	return float64(d)
}

func wrap(v, n int) int {
	return ((v % n) + n) % n
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
