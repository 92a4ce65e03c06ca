// Package lineage records genome ancestry by content hash and scores kinship
// between genomes without materializing the genomes themselves.
//
// A lineage is immutable after construction and may be shared freely between
// goroutines. Queries walk the ancestry DAG with an explicit stack and memoize
// per query, so ancestors shared through several crossover paths are visited
// once.
package lineage

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"sync/atomic"
)

var (
	ErrTooFewParents = errors.New("multi-parent lineage requires at least two parents")
	ErrInvalidWeight = errors.New("parent weight must be positive and finite")
	ErrNilParent     = errors.New("parent lineage is nil")
	ErrInvalidHash   = errors.New("invalid lineage hash")
)

// fullShare is the containment above which a whole ancestor subtree counts as
// shared; weighted means of exact ones can land just below 1.
const fullShare = 1 - 1e-12

// Hash is the content hash of the genome a lineage describes.
type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

func ParseHash(s string) (Hash, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidHash, s, err)
	}
	return Hash(v), nil
}

// Parent is a weighted reference to an ancestor lineage.
type Parent struct {
	Lineage Lineage
	Weight  float64
}

type Lineage interface {
	Hash() Hash
	// Generations is the weighted ancestry depth: 1 for a root.
	Generations() float64
	// Contains returns the fraction of this ancestry that passes through h.
	Contains(h Hash) float64
	// KinshipAgainst scores how much of this ancestry other shares, in [0,1].
	KinshipAgainst(other Lineage) float64
	// Ancestors enumerates every distinct ancestor hash, self first. The
	// sequence is materialized once and can be iterated any number of times.
	Ancestors() iter.Seq[Hash]
	Parents() []Parent

	base() *core
}

type core struct {
	hash        Hash
	generations float64
	parents     []Parent
	normalizer  float64
	ancestors   atomic.Pointer[[]Hash]
}

func (c *core) base() *core {
	return c
}

func (c *core) Hash() Hash {
	return c.hash
}

func (c *core) Generations() float64 {
	return c.generations
}

func (c *core) Parents() []Parent {
	return append([]Parent(nil), c.parents...)
}

// Root has no parents.
type Root struct {
	core
}

func NewRoot(h Hash) *Root {
	return &Root{core: core{hash: h, generations: 1}}
}

func (r *Root) Contains(h Hash) float64              { return contains(r, h) }
func (r *Root) KinshipAgainst(other Lineage) float64 { return kinship(r, other) }
func (r *Root) Ancestors() iter.Seq[Hash]            { return ancestors(r) }

// Single descends from exactly one parent.
type Single struct {
	core
}

func NewSingle(h Hash, parent Lineage) (*Single, error) {
	if parent == nil {
		return nil, ErrNilParent
	}
	return &Single{core: core{
		hash:        h,
		generations: parent.Generations() + 1,
		parents:     []Parent{{Lineage: parent, Weight: 1}},
		normalizer:  1,
	}}, nil
}

func (s *Single) Parent() Lineage                      { return s.parents[0].Lineage }
func (s *Single) Contains(h Hash) float64              { return contains(s, h) }
func (s *Single) KinshipAgainst(other Lineage) float64 { return kinship(s, other) }
func (s *Single) Ancestors() iter.Seq[Hash]            { return ancestors(s) }

// Multi blends two or more weighted parents, as produced by crossover.
type Multi struct {
	core
}

func NewMulti(h Hash, parents []Parent) (*Multi, error) {
	if len(parents) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewParents, len(parents))
	}
	normalizer := 0.0
	weighted := 0.0
	for i, p := range parents {
		if p.Lineage == nil {
			return nil, fmt.Errorf("%w at index %d", ErrNilParent, i)
		}
		if !(p.Weight > 0) || math.IsInf(p.Weight, 0) {
			return nil, fmt.Errorf("%w: index %d weight %v", ErrInvalidWeight, i, p.Weight)
		}
		normalizer += p.Weight
		weighted += p.Weight * p.Lineage.Generations()
	}
	if math.IsInf(normalizer, 0) {
		return nil, fmt.Errorf("%w: weights overflow", ErrInvalidWeight)
	}
	return &Multi{core: core{
		hash:        h,
		generations: weighted/normalizer + 1,
		parents:     append([]Parent(nil), parents...),
		normalizer:  normalizer,
	}}, nil
}

func (m *Multi) Contains(h Hash) float64              { return contains(m, h) }
func (m *Multi) KinshipAgainst(other Lineage) float64 { return kinship(m, other) }
func (m *Multi) Ancestors() iter.Seq[Hash]            { return ancestors(m) }

// Derive picks the variant matching the number of parents.
func Derive(h Hash, parents ...Parent) (Lineage, error) {
	switch len(parents) {
	case 0:
		return NewRoot(h), nil
	case 1:
		single, err := NewSingle(h, parents[0].Lineage)
		if err != nil {
			return nil, err
		}
		return single, nil
	default:
		multi, err := NewMulti(h, parents)
		if err != nil {
			return nil, err
		}
		return multi, nil
	}
}

// weightedMean averages vals by the parents' weights.
func weightedMean(c *core, vals []float64) float64 {
	total := 0.0
	for i, p := range c.parents {
		total += p.Weight * vals[i]
	}
	return total / c.normalizer
}

func contains(l Lineage, h Hash) float64 {
	return fold(l,
		func(n *core) (float64, bool) {
			if n.hash == h {
				return 1, true
			}
			if len(n.parents) == 0 {
				return 0, true
			}
			return 0, false
		},
		weightedMean,
	)
}

type kin struct {
	generations float64
	shared      float64
}

func kinship(l, other Lineage) float64 {
	if other == nil {
		return 0
	}
	memo := make(map[Hash]float64)
	share := func(h Hash) float64 {
		if v, ok := memo[h]; ok {
			return v
		}
		v := other.Contains(h)
		memo[h] = v
		return v
	}

	result := fold(l,
		func(n *core) (kin, bool) {
			c := share(n.hash)
			if c >= fullShare {
				return kin{generations: n.generations, shared: n.generations}, true
			}
			if len(n.parents) == 0 {
				return kin{generations: 1, shared: c}, true
			}
			return kin{}, false
		},
		func(n *core, vals []kin) kin {
			var out kin
			for i, p := range n.parents {
				out.generations += p.Weight * vals[i].generations
				out.shared += p.Weight * vals[i].shared
			}
			out.generations = out.generations/n.normalizer + 1
			out.shared = out.shared/n.normalizer + share(n.hash)
			return out
		},
	)
	if result.generations <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, result.shared/result.generations))
}

func ancestors(l Lineage) iter.Seq[Hash] {
	list := materialize(l)
	return func(yield func(Hash) bool) {
		for _, h := range list {
			if !yield(h) {
				return
			}
		}
	}
}

func materialize(l Lineage) []Hash {
	n := l.base()
	if cached := n.ancestors.Load(); cached != nil {
		return *cached
	}
	prefix, head := descend(n)
	resolveHeads(head)
	return publish(n, join(prefix, *head.ancestors.Load()))
}

// descend follows single-parent links from n, collecting their hashes, and
// stops at the first root, multi-parent or already materialized lineage. Runs
// of single parents are never cached on their own, so a long chain costs
// linear memory.
func descend(n *core) ([]Hash, *core) {
	var prefix []Hash
	for n.ancestors.Load() == nil && len(n.parents) == 1 {
		prefix = append(prefix, n.hash)
		n = n.parents[0].Lineage.base()
	}
	return prefix, n
}

// resolveHeads publishes the ancestor list of start and of every multi-parent
// lineage it depends on, parents first. Concurrent builders produce identical
// lists and the first one published wins.
func resolveHeads(start *core) {
	type frame struct {
		n        *core
		expanded bool
	}
	stack := []frame{{n: start}}
	for len(stack) > 0 {
		top := len(stack) - 1
		current := stack[top]
		n := current.n
		if n.ancestors.Load() != nil {
			stack = stack[:top]
			continue
		}
		if len(n.parents) == 0 {
			publish(n, []Hash{n.hash})
			stack = stack[:top]
			continue
		}
		if !current.expanded {
			stack[top].expanded = true
			for i := len(n.parents) - 1; i >= 0; i-- {
				if _, head := descend(n.parents[i].Lineage.base()); head.ancestors.Load() == nil {
					stack = append(stack, frame{n: head})
				}
			}
			continue
		}

		lists := make([][]Hash, len(n.parents))
		for i, p := range n.parents {
			prefix, head := descend(p.Lineage.base())
			lists[i] = join(prefix, *head.ancestors.Load())
		}
		publish(n, interleave(n.hash, lists))
		stack = stack[:top]
	}
}

func join(prefix, tail []Hash) []Hash {
	if len(prefix) == 0 {
		return tail
	}
	out := make([]Hash, 0, len(prefix)+len(tail))
	seen := make(map[Hash]struct{}, len(prefix))
	for _, h := range prefix {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, h := range tail {
		if _, dup := seen[h]; dup {
			continue
		}
		out = append(out, h)
	}
	return out
}

func publish(n *core, list []Hash) []Hash {
	if n.ancestors.CompareAndSwap(nil, &list) {
		return list
	}
	return *n.ancestors.Load()
}

// interleave takes one unseen hash from each non-exhausted parent list in
// turn, so no single line of descent dominates the order.
func interleave(self Hash, lists [][]Hash) []Hash {
	total := 1
	for _, list := range lists {
		total += len(list)
	}
	out := make([]Hash, 0, total)
	seen := make(map[Hash]struct{}, total)
	out = append(out, self)
	seen[self] = struct{}{}

	cursors := make([]int, len(lists))
	for remaining := len(lists); remaining > 0; {
		remaining = 0
		for i, list := range lists {
			for cursors[i] < len(list) {
				h := list[cursors[i]]
				cursors[i]++
				if _, dup := seen[h]; dup {
					continue
				}
				seen[h] = struct{}{}
				out = append(out, h)
				break
			}
			if cursors[i] < len(list) {
				remaining++
			}
		}
	}
	return out
}

// fold evaluates a post-order query over the ancestry DAG with an explicit
// stack. leaf may answer a node without visiting its parents; combine receives
// parent results in parent order. Results are memoized per call.
func fold[T any](root Lineage, leaf func(*core) (T, bool), combine func(*core, []T) T) T {
	type frame struct {
		n        *core
		expanded bool
	}
	memo := make(map[*core]T)
	stack := []frame{{n: root.base()}}
	for len(stack) > 0 {
		top := len(stack) - 1
		current := stack[top]
		if _, done := memo[current.n]; done {
			stack = stack[:top]
			continue
		}
		if !current.expanded {
			if v, ok := leaf(current.n); ok {
				memo[current.n] = v
				stack = stack[:top]
				continue
			}
			stack[top].expanded = true
			for i := len(current.n.parents) - 1; i >= 0; i-- {
				parent := current.n.parents[i].Lineage.base()
				if _, done := memo[parent]; !done {
					stack = append(stack, frame{n: parent})
				}
			}
			continue
		}

		vals := make([]T, len(current.n.parents))
		for i, p := range current.n.parents {
			vals[i] = memo[p.Lineage.base()]
		}
		memo[current.n] = combine(current.n, vals)
		stack = stack[:top]
	}
	return memo[root.base()]
}
