package genotype

import (
	"math/rand"
	"time"

	"sigevo/internal/network"
	"sigevo/internal/node"
)

// Seed constructs a minimal random network: each decision reads one sensor
// through a single-input function node. Without sensors, decisions read
// constants instead.
func Seed(rng *rand.Rand, sensors, decisions int, opts ...network.Option) (*network.Network, error) {
	rng = ensureRNG(rng)
	unary := node.TransformsAccepting(1)

	return network.Build(sensors, decisions, func(n *network.Network) error {
		in := n.Sensors()
		for _, d := range n.Decisions() {
			if len(in) == 0 {
				if err := d.SetInputs(node.NewConstant(randomCentered(rng))); err != nil {
					return err
				}
				continue
			}
			f, err := node.NewFunction(unary[rng.Intn(len(unary))])
			if err != nil {
				return err
			}
			if err := f.SetInputs(in[rng.Intn(len(in))]); err != nil {
				return err
			}
			if err := d.SetInputs(f); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}

// SeedPopulation builds size independent seed networks.
func SeedPopulation(rng *rand.Rand, size, sensors, decisions int, opts ...network.Option) ([]*network.Network, error) {
	rng = ensureRNG(rng)
	out := make([]*network.Network, 0, size)
	for range size {
		n, err := Seed(rng, sensors, decisions, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func randomCentered(rng *rand.Rand) float64 {
	return rng.Float64() - 0.5
}
