package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigevo/internal/lineage"
	"sigevo/internal/node"
)

// buildPair wires decision 0 and decision 1 to transforms of the sensor, or to
// a constant when the transform name is empty.
func buildPair(t *testing.T, first, second string, generation int) *Network {
	t.Helper()
	n, err := Build(1, 2, func(n *Network) error {
		for i, name := range []string{first, second} {
			var p node.Provider = node.NewConstant(float64(i + 1))
			if name != "" {
				f := node.MustFunction(name)
				if err := f.SetInputs(n.Sensors()[0]); err != nil {
					return err
				}
				p = f
			}
			if err := n.Decisions()[i].SetInputs(p); err != nil {
				return err
			}
		}
		return nil
	}, WithGeneration(generation))
	require.NoError(t, err)
	return n
}

func TestBlendTakesChosenSubgraphs(t *testing.T) {
	p1 := buildPair(t, "negate", "", 2)
	p2 := buildPair(t, "", "tanh", 5)

	child, err := Blend([]BlendParent{{Network: p1, Weight: 1}, {Network: p2, Weight: 3}}, func(d int) int { return d })
	require.NoError(t, err)

	s := child.Sensors()[0]
	d0 := child.Decisions()[0].Input().(*node.Function)
	d1 := child.Decisions()[1].Input().(*node.Function)
	assert.Equal(t, "negate", d0.Transform())
	assert.Equal(t, "tanh", d1.Transform())
	assert.Same(t, s, d0.Inputs()[0])
	assert.Same(t, s, d1.Inputs()[0])
	assert.Equal(t, 5, child.Len())
	assert.NoError(t, child.Audit())
	assert.Equal(t, 6, child.Generation())

	l := child.Lineage()
	require.IsType(t, &lineage.Multi{}, l)
	assert.Equal(t, 0.25, l.Contains(p1.Hash()))
	assert.Equal(t, 0.75, l.Contains(p2.Hash()))
	assert.Equal(t, 2.0, l.Generations())

	assert.NoError(t, p1.Audit())
	assert.NoError(t, p2.Audit())
	assert.Len(t, p1.Sensors()[0].Consumers(), 1)
}

func TestBlendKeepsSharingWithinParent(t *testing.T) {
	shared, err := Build(1, 2, func(n *Network) error {
		g := node.MustFunction("relu")
		if err := g.SetInputs(n.Sensors()[0]); err != nil {
			return err
		}
		for _, d := range n.Decisions() {
			if err := d.SetInputs(g); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	other := buildPair(t, "negate", "negate", 0)

	child, err := Blend([]BlendParent{{Network: shared, Weight: 1}, {Network: other, Weight: 1}}, func(int) int { return 0 })
	require.NoError(t, err)
	assert.Same(t, child.Decisions()[0].Input(), child.Decisions()[1].Input())
	assert.Equal(t, shared.Hash(), child.Hash())
	assert.NotEqual(t, shared.Lineage(), child.Lineage())
}

func TestBlendRejectsMismatchedLayouts(t *testing.T) {
	p1 := buildPair(t, "negate", "", 0)
	p2, err := Build(1, 3, nil)
	require.NoError(t, err)

	_, err = Blend([]BlendParent{{Network: p1, Weight: 1}, {Network: p2, Weight: 1}}, func(int) int { return 0 })
	require.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = Blend([]BlendParent{{Network: p1, Weight: 1}}, func(int) int { return 1 })
	require.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = Blend(nil, func(int) int { return 0 })
	require.ErrorIs(t, err, ErrInvalidLayout)

	_, err = Blend([]BlendParent{{Network: p1, Weight: 1}, {Network: p1, Weight: -1}}, func(int) int { return 0 })
	require.ErrorIs(t, err, lineage.ErrInvalidWeight)
}
