package lineage

import (
	"errors"
	"fmt"
	"sync"

	"sigevo/internal/model"
	"sigevo/internal/storage"
)

var (
	ErrMissingParent = errors.New("lineage parent not found")
	ErrLineageCycle  = errors.New("lineage records form a cycle")
)

// Entry is an indexed lineage with the breeding facts recorded at birth.
type Entry struct {
	Lineage    Lineage
	Generation int
	Operation  string
	Fitness    float64
}

// Index maps content hashes to lineages for a run. It is safe for concurrent
// use.
type Index struct {
	mu      sync.RWMutex
	entries map[Hash]Entry
	order   []Hash
}

func NewIndex() *Index {
	return &Index{entries: make(map[Hash]Entry)}
}

// Add registers e. A hash that is already known keeps its first entry and Add
// reports false.
func (x *Index) Add(e Entry) bool {
	if e.Lineage == nil {
		return false
	}
	h := e.Lineage.Hash()

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.entries[h]; exists {
		return false
	}
	x.entries[h] = e
	x.order = append(x.order, h)
	return true
}

func (x *Index) Get(h Hash) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[h]
	return e, ok
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.order)
}

// SetFitness records the evaluated fitness of a known hash.
func (x *Index) SetFitness(h Hash, fitness float64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[h]
	if !ok {
		return false
	}
	e.Fitness = fitness
	x.entries[h] = e
	return true
}

// Records exports every entry in insertion order. Parents always precede
// their children because a child cannot be added before its parents exist.
func (x *Index) Records() []model.LineageRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]model.LineageRecord, 0, len(x.order))
	for _, h := range x.order {
		out = append(out, Record(x.entries[h]))
	}
	return out
}

// Record converts an entry to its persisted form, referencing parents by hash.
func Record(e Entry) model.LineageRecord {
	record := model.LineageRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		Generation: e.Generation,
		Operation:  e.Operation,
		Fitness:    e.Fitness,
	}
	if e.Lineage == nil {
		return record
	}
	record.Hash = e.Lineage.Hash().String()
	for _, p := range e.Lineage.Parents() {
		record.Parents = append(record.Parents, model.LineageParent{
			Hash:   p.Lineage.Hash().String(),
			Weight: p.Weight,
		})
	}
	return record
}

// Rebuild reconstructs an index from records in any order. Every parent hash
// must itself have a record.
func Rebuild(records []model.LineageRecord) (*Index, error) {
	byHash := make(map[Hash]model.LineageRecord, len(records))
	order := make([]Hash, 0, len(records))
	for _, record := range records {
		h, err := ParseHash(record.Hash)
		if err != nil {
			return nil, err
		}
		if _, dup := byHash[h]; dup {
			continue
		}
		byHash[h] = record
		order = append(order, h)
	}

	const (
		unseen = iota
		building
		built
	)
	status := make(map[Hash]int, len(byHash))
	index := NewIndex()

	for _, start := range order {
		stack := []Hash{start}
		for len(stack) > 0 {
			h := stack[len(stack)-1]
			if status[h] == built {
				stack = stack[:len(stack)-1]
				continue
			}
			record := byHash[h]
			parentHashes := make([]Hash, len(record.Parents))
			for i, p := range record.Parents {
				ph, err := ParseHash(p.Hash)
				if err != nil {
					return nil, err
				}
				if _, ok := byHash[ph]; !ok {
					return nil, fmt.Errorf("%w: %s (parent of %s)", ErrMissingParent, p.Hash, record.Hash)
				}
				parentHashes[i] = ph
			}

			if status[h] == unseen {
				status[h] = building
				pending := false
				for i := len(parentHashes) - 1; i >= 0; i-- {
					switch status[parentHashes[i]] {
					case unseen:
						stack = append(stack, parentHashes[i])
						pending = true
					case building:
						return nil, fmt.Errorf("%w at %s", ErrLineageCycle, record.Hash)
					}
				}
				if pending {
					continue
				}
			}

			parents := make([]Parent, len(parentHashes))
			for i, ph := range parentHashes {
				entry, _ := index.Get(ph)
				parents[i] = Parent{Lineage: entry.Lineage, Weight: record.Parents[i].Weight}
			}
			l, err := Derive(h, parents...)
			if err != nil {
				return nil, fmt.Errorf("rebuild lineage %s: %w", record.Hash, err)
			}
			index.Add(Entry{
				Lineage:    l,
				Generation: record.Generation,
				Operation:  record.Operation,
				Fitness:    record.Fitness,
			})
			status[h] = built
			stack = stack[:len(stack)-1]
		}
	}
	return index, nil
}
