package network

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"sigevo/internal/lineage"
	"sigevo/internal/node"
)

const hashDomain = "sigevo/network/v1"

// contentHash digests the canonical structure of n: layout, then each member in
// canonical order with its kind, transform, params and input indices. Round
// state never contributes.
func contentHash(n *Network) lineage.Hash {
	index := make(map[node.Node]int, len(n.members))
	for i, m := range n.members {
		index[m] = i
	}

	d := xxhash.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = d.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(len(s))
		_, _ = d.WriteString(s)
	}

	_, _ = d.WriteString(hashDomain)
	writeInt(len(n.sensors))
	writeInt(len(n.decisions))
	writeInt(len(n.members))
	for _, m := range n.members {
		spec := m.Spec()
		writeString(string(spec.Kind))
		writeString(spec.Transform)
		writeInt(len(spec.Params))
		for _, p := range spec.Params {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p))
			_, _ = d.Write(buf[:])
		}
		c, ok := m.(node.Consumer)
		if !ok {
			writeInt(-1)
			continue
		}
		inputs := c.Inputs()
		writeInt(len(inputs))
		for _, in := range inputs {
			writeInt(index[in])
		}
	}
	return lineage.Hash(d.Sum64())
}

// tieKey orders decisions of equal weight. It depends only on the genome hash,
// the decision position and the round, so replays order ties identically.
func tieKey(genome lineage.Hash, position, round int) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(genome))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(position)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(int64(round)))
	return xxhash.Sum64(buf[:])
}
