package scape

import (
	"context"
	"errors"
	"testing"
)

// scriptedAgent replays actions and records what it observed.
type scriptedAgent struct {
	actions  func(turn int, env Sensable) int
	turn     int
	episodes int
	seen     [][]float64
}

func (a *scriptedAgent) ID() string { return "scripted" }

func (a *scriptedAgent) BeginEpisode() {
	a.episodes++
	a.turn = 0
}

func (a *scriptedAgent) Act(_ context.Context, env Sensable) (int, error) {
	obs := make([]float64, env.SensorSlots())
	for i := range obs {
		obs[i] = env.Observe(i)
	}
	a.seen = append(a.seen, obs)
	action := a.actions(a.turn, env)
	a.turn++
	return action, nil
}

// greedy walks toward the nearest pellet using the offset sensors.
func greedy(_ int, env Sensable) int {
	dx, dy := env.Observe(0), env.Observe(1)
	switch {
	case dx > 0:
		return ActionEast
	case dx < 0:
		return ActionWest
	case dy > 0:
		return ActionSouth
	case dy < 0:
		return ActionNorth
	default:
		return ActionStay
	}
}

func TestForageGreedyAgentOutscoresIdleAgent(t *testing.T) {
	f := DefaultForage()

	greedyAgent := &scriptedAgent{actions: greedy}
	greedyFitness, trace, err := f.Evaluate(context.Background(), greedyAgent)
	if err != nil {
		t.Fatalf("evaluate greedy: %v", err)
	}
	if eaten, _ := trace["eaten"].(int); eaten == 0 {
		t.Fatalf("expected greedy agent to eat, trace=%+v", trace)
	}

	idle := &scriptedAgent{actions: func(int, Sensable) int { return ActionStay }}
	idleFitness, _, err := f.Evaluate(context.Background(), idle)
	if err != nil {
		t.Fatalf("evaluate idle: %v", err)
	}
	if greedyFitness <= idleFitness {
		t.Fatalf("expected greedy > idle, got greedy=%f idle=%f", greedyFitness, idleFitness)
	}
	if greedyAgent.episodes != 1 || idle.episodes != 1 {
		t.Fatalf("expected one episode each, got %d and %d", greedyAgent.episodes, idle.episodes)
	}
}

func TestForageIsDeterministicPerSeed(t *testing.T) {
	f := DefaultForage()
	a := &scriptedAgent{actions: greedy}
	b := &scriptedAgent{actions: greedy}
	fa, _, err := f.Evaluate(context.Background(), a)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fb, _, err := f.Evaluate(context.Background(), b)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fa != fb || len(a.seen) != len(b.seen) {
		t.Fatalf("expected identical episodes, got %f/%d and %f/%d", fa, len(a.seen), fb, len(b.seen))
	}
}

func TestForageObservationsAreBounded(t *testing.T) {
	a := &scriptedAgent{actions: func(turn int, _ Sensable) int { return turn % ForageActions }}
	if _, _, err := DefaultForage().Evaluate(context.Background(), a); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for turn, obs := range a.seen {
		if len(obs) != ForageSensors {
			t.Fatalf("turn %d: expected %d sensors, got %d", turn, ForageSensors, len(obs))
		}
		if obs[0] < -1 || obs[0] > 1 || obs[1] < -1 || obs[1] > 1 {
			t.Fatalf("turn %d: offset out of range: %+v", turn, obs)
		}
		if obs[3] != 1 {
			t.Fatalf("turn %d: expected bias 1, got %f", turn, obs[3])
		}
	}
}

func TestForageRejectsBadActionAndConfig(t *testing.T) {
	bad := &scriptedAgent{actions: func(int, Sensable) int { return ForageActions }}
	if _, _, err := DefaultForage().Evaluate(context.Background(), bad); !errors.Is(err, ErrBadAction) {
		t.Fatalf("expected ErrBadAction, got %v", err)
	}

	f := DefaultForage()
	f.Food = f.Width * f.Height
	if err := f.Validate(); !errors.Is(err, ErrInvalidScape) {
		t.Fatalf("expected ErrInvalidScape, got %v", err)
	}
}

func TestForageHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &scriptedAgent{actions: greedy}
	if _, _, err := DefaultForage().Evaluate(ctx, a); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTorusDelta(t *testing.T) {
	cases := []struct {
		a, b, n int
		want    float64
	}{
		{a: 0, b: 3, n: 12, want: 3},
		{a: 0, b: 11, n: 12, want: -1},
		{a: 10, b: 1, n: 12, want: 3},
		{a: 5, b: 5, n: 12, want: 0},
	}
	for _, c := range cases {
		if got := torusDelta(c.a, c.b, c.n); got != c.want {
			t.Fatalf("torusDelta(%d,%d,%d)=%f want=%f", c.a, c.b, c.n, got, c.want)
		}
	}
}

func TestXORScoresTruthTable(t *testing.T) {
	perfect := &scriptedAgent{actions: func(_ int, env Sensable) int {
		if (env.Observe(0) > 0.5) != (env.Observe(1) > 0.5) {
			return 1
		}
		return 0
	}}
	fitness, trace, err := XOR{Repeats: 2}.Evaluate(context.Background(), perfect)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fitness != 1 {
		t.Fatalf("expected perfect fitness, got %f (trace=%+v)", fitness, trace)
	}
	if cases, _ := trace["cases"].(int); cases != 8 {
		t.Fatalf("expected 8 cases, got %v", trace["cases"])
	}

	always := &scriptedAgent{actions: func(int, Sensable) int { return 1 }}
	fitness, _, err = XOR{}.Evaluate(context.Background(), always)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fitness != 0.5 {
		t.Fatalf("expected 0.5 fitness, got %f", fitness)
	}
}

func TestNewResolvesAliases(t *testing.T) {
	s, err := New(Config{Name: "grid_forage", Width: 8, Height: 6})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f, ok := s.(Forage)
	if !ok {
		t.Fatalf("expected Forage, got %T", s)
	}
	if f.Width != 8 || f.Height != 6 || f.Turns != DefaultForage().Turns {
		t.Fatalf("unexpected forage config: %+v", f)
	}

	if s, err := New(Config{Name: "xor_sim"}); err != nil || s.Name() != "xor" {
		t.Fatalf("expected xor scape, got %v err=%v", s, err)
	}
	if _, err := New(Config{Name: "chess"}); !errors.Is(err, ErrUnknownScape) {
		t.Fatalf("expected ErrUnknownScape, got %v", err)
	}
	if _, err := New(Config{Name: "forage", Food: 1000}); !errors.Is(err, ErrInvalidScape) {
		t.Fatalf("expected ErrInvalidScape, got %v", err)
	}
}
