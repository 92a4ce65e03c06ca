package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIsIdempotentWithinRound(t *testing.T) {
	c := NewConstant(2)
	f := MustFunction("negate")
	require.NoError(t, f.SetInputs(c))

	first := f.Compute()
	c.Value = 7
	second := f.Compute()

	assert.Equal(t, -2.0, first)
	assert.Equal(t, first, second, "cached value must not change before Before")
}

func TestBeforeInvalidatesDependents(t *testing.T) {
	c := NewConstant(2)
	f := MustFunction("negate")
	require.NoError(t, f.SetInputs(c))
	require.Equal(t, -2.0, f.Compute())

	c.Value = 5
	c.Before()

	_, final := f.Cached()
	assert.False(t, final, "consumer should be stale after provider Before")
	assert.Equal(t, -5.0, f.Compute())
}

func TestSetInputsRejectsArityBeforeMutation(t *testing.T) {
	a := NewConstant(1)
	b := NewConstant(2)
	f := MustFunction("identity")
	require.NoError(t, f.SetInputs(a))

	err := f.SetInputs(a, b)
	require.ErrorIs(t, err, ErrArity)
	assert.Equal(t, []Provider{a}, f.Inputs())
	assert.Len(t, a.Consumers(), 1)
	assert.Empty(t, b.Consumers())

	err = f.SetInputs(nil)
	require.ErrorIs(t, err, ErrNilInput)
	assert.Equal(t, []Provider{a}, f.Inputs())
}

func TestSetInputsMaintainsBackReferences(t *testing.T) {
	a := NewConstant(1)
	b := NewConstant(2)
	sum := MustFunction("sum")

	require.NoError(t, sum.SetInputs(a, a, b))
	assert.Equal(t, []Consumer{sum}, a.Consumers())
	assert.Equal(t, []Consumer{sum}, b.Consumers())
	assert.Equal(t, 4.0, sum.Compute())

	require.NoError(t, sum.SetInputs(b))
	assert.Empty(t, a.Consumers())
	assert.Equal(t, []Consumer{sum}, b.Consumers())

	sum.Release()
	assert.Empty(t, b.Consumers())
	assert.Empty(t, sum.Inputs())
}

func TestResolveCycleReadsPreviousRound(t *testing.T) {
	s := NewSensor()
	a := MustFunction("sum")
	b := MustFunction("identity")
	require.NoError(t, a.SetInputs(s, b))
	require.NoError(t, b.SetInputs(a))

	round := func(v float64) float64 {
		for _, n := range []Node{s, a, b} {
			n.Before()
		}
		s.Set(v)
		return a.Compute()
	}

	// b is still computing when a needs it, so the edge b->a is recurrent.
	assert.Equal(t, 1.0, round(1))
	assert.Equal(t, 2.0, round(1))
	assert.Equal(t, 4.0, round(2))
}

func TestDelayOutputsPreviousInput(t *testing.T) {
	s := NewSensor()
	d := NewDelay(0.5)
	require.NoError(t, d.SetInputs(s))

	var got []float64
	for _, v := range []float64{1, 2, 3} {
		s.Before()
		d.Before()
		s.Set(v)
		got = append(got, d.Compute())
		d.After()
	}
	assert.Equal(t, []float64{0.5, 1, 2}, got)

	d.Reset()
	d.Before()
	assert.Equal(t, 0.5, d.Compute())
}

func TestDelayBreaksSelfLoop(t *testing.T) {
	d := NewDelay(1)
	f := MustFunction("sum")
	one := NewConstant(1)
	require.NoError(t, f.SetInputs(d, one))
	require.NoError(t, d.SetInputs(f))

	var got []float64
	for i := 0; i < 3; i++ {
		for _, n := range []Node{d, f, one} {
			n.Before()
		}
		got = append(got, f.Compute())
		d.After()
	}
	assert.Equal(t, []float64{2, 3, 4}, got)
}

func TestResolveDeepChainWithoutRecursion(t *testing.T) {
	const depth = 200000
	var prev Provider = NewConstant(1)
	for i := 0; i < depth; i++ {
		f := MustFunction("identity")
		require.NoError(t, f.SetInputs(prev))
		prev = f
	}
	assert.Equal(t, 1.0, prev.Compute())
}

func TestWaveAdvancesAndResets(t *testing.T) {
	w := NewWave(0.5)
	first := w.Compute()
	w.After()
	w.Before()
	second := w.Compute()
	assert.Equal(t, 0.0, first)
	assert.NotEqual(t, first, second)

	w.Reset()
	assert.Equal(t, 0.0, w.Compute())
}

func TestCloneDropsWiringAndOwner(t *testing.T) {
	s := NewSensor()
	s.Bind("net")
	d := NewDecision()
	d.Bind("net")
	require.NoError(t, d.SetInputs(s))

	sc := s.Clone().(*Sensor)
	dc := d.Clone().(*Decision)
	assert.Nil(t, sc.Owner())
	assert.Nil(t, dc.Owner())
	assert.Nil(t, dc.Input())
	assert.Empty(t, sc.Consumers())
}

func TestFromSpecRoundTrip(t *testing.T) {
	nodes := []Node{
		NewSensor(),
		NewDecision(),
		MustFunction("tanh"),
		NewConstant(0.25),
		NewWave(0.1),
		NewDelay(-1),
	}
	for _, n := range nodes {
		rebuilt, err := FromSpec(n.Spec())
		require.NoError(t, err, "kind %s", n.Kind())
		assert.Equal(t, n.Spec(), rebuilt.Spec())
	}

	_, err := FromSpec(Spec{Kind: "bogus"})
	require.ErrorIs(t, err, ErrUnknown)
	_, err = FromSpec(Spec{Kind: KindConstant})
	require.Error(t, err)
	_, err = FromSpec(Spec{Kind: KindFunction, Transform: "missing"})
	require.ErrorIs(t, err, ErrTransformNotFound)
}

func TestRegisterAndGetTransform(t *testing.T) {
	resetTransformRegistryForTests()
	t.Cleanup(resetTransformRegistryForTests)

	if err := RegisterTransform("square", 1, 1, func(in []float64) float64 { return in[0] * in[0] }); err != nil {
		t.Fatalf("register transform: %v", err)
	}
	tr, err := GetTransform("square")
	if err != nil {
		t.Fatalf("get transform: %v", err)
	}
	if got := tr.Func([]float64{3}); got != 9 {
		t.Fatalf("unexpected transform result: got=%f want=9", got)
	}

	f, err := NewFunction("square")
	if err != nil {
		t.Fatalf("new function: %v", err)
	}
	if min, max := f.Arity(); min != 1 || max != 1 {
		t.Fatalf("unexpected arity: [%d,%d]", min, max)
	}
}

func TestRegisterTransformValidation(t *testing.T) {
	resetTransformRegistryForTests()
	t.Cleanup(resetTransformRegistryForTests)

	if err := RegisterTransform("", 1, 1, func(in []float64) float64 { return 0 }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterTransform("nil", 1, 1, nil); err == nil {
		t.Fatal("expected nil function error")
	}
	if err := RegisterTransform("bad-arity", 2, 1, func(in []float64) float64 { return 0 }); !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity, got: %v", err)
	}
	if err := RegisterTransformWithSpec(TransformSpec{
		Name:          "bad-version",
		Func:          func(in []float64) float64 { return 0 },
		MinInputs:     1,
		MaxInputs:     1,
		SchemaVersion: 99,
		CodecVersion:  1,
	}); !errors.Is(err, ErrTransformVersion) {
		t.Fatalf("expected ErrTransformVersion, got: %v", err)
	}
	if err := RegisterTransform("identity", 1, 1, func(in []float64) float64 { return 0 }); !errors.Is(err, ErrTransformExists) {
		t.Fatalf("expected ErrTransformExists, got: %v", err)
	}
}

func TestTransformsAccepting(t *testing.T) {
	two := TransformsAccepting(2)
	assert.Contains(t, two, "sub")
	assert.Contains(t, two, "sum")
	assert.NotContains(t, two, "identity")
}

func TestSaturation(t *testing.T) {
	assert.Equal(t, 1000.0, Saturation(5000))
	assert.Equal(t, -1000.0, Saturation(-5000))
	assert.Equal(t, 0.5, Saturation(0.5))
}
