package scape

import (
	"context"
	"fmt"
)

const (
	XORActions = 2
	XORSensors = 3
)

// XOR presents the four truth-table rows in a fixed order, Repeats times.
// Action 1 answers true. Fitness is the fraction of rows answered correctly.
type XOR struct {
	Repeats int
}

func (XOR) Name() string {
	return "xor"
}

func (XOR) SensorSlots() int { return XORSensors }
func (XOR) Actions() int     { return XORActions }

type xorCase struct {
	in   [2]float64
	want int
}

var xorCases = []xorCase{
	{in: [2]float64{0, 0}, want: 0},
	{in: [2]float64{0, 1}, want: 1},
	{in: [2]float64{1, 0}, want: 1},
	{in: [2]float64{1, 1}, want: 0},
}

// xorTurn exposes the row under evaluation plus a bias.
type xorTurn struct {
	in [2]float64
}

func (t *xorTurn) SensorSlots() int { return XORSensors }

func (t *xorTurn) Observe(slot int) float64 {
	switch slot {
	case 0, 1:
		return t.in[slot]
	case 2:
		return 1
	default:
		return 0
	}
}

func (x XOR) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	repeats := max(x.Repeats, 1)
	agent.BeginEpisode()

	turn := &xorTurn{}
	answers := make([]int, 0, repeats*len(xorCases))
	correct := 0
	for r := 0; r < repeats; r++ {
		for _, c := range xorCases {
			if err := ctx.Err(); err != nil {
				return 0, nil, err
			}
			turn.in = c.in
			action, err := agent.Act(ctx, turn)
			if err != nil {
				return 0, nil, err
			}
			if action < 0 || action >= XORActions {
				return 0, nil, fmt.Errorf("%w: xor action %d", ErrBadAction, action)
			}
			answers = append(answers, action)
			if action == c.want {
				correct++
			}
		}
	}

	return Fitness(float64(correct) / float64(len(answers))), Trace{
		"correct": correct,
		"cases":   len(answers),
		"answers": answers,
	}, nil
}
