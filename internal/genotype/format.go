package genotype

import (
	"fmt"
	"strconv"
	"strings"

	"sigevo/internal/model"
)

// Format returns a human-readable multiline dump of the genome.
func Format(g model.Genome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "genome: %s\n", g.ID)
	fmt.Fprintf(&b, "generation: %d\n", g.Generation)
	fmt.Fprintf(&b, "sensors: %v\n", g.Sensors)
	fmt.Fprintf(&b, "decisions: %v\n", g.Decisions)
	fmt.Fprintf(&b, "nodes: %d\n", len(g.Nodes))
	for i, rec := range g.Nodes {
		fmt.Fprintf(&b, "  %d %s", i, rec.Kind)
		if rec.Transform != "" {
			fmt.Fprintf(&b, " fn=%s", rec.Transform)
		}
		if len(rec.Params) > 0 {
			fmt.Fprintf(&b, " params=%s", formatFloats(rec.Params))
		}
		if len(rec.Inputs) > 0 {
			fmt.Fprintf(&b, " <- %v", rec.Inputs)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
