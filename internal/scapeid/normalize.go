package scapeid

import "strings"

const (
	Forage = "forage"
	XOR    = "xor"
)

// Normalize canonicalizes scape names and their aliases. Unknown names are
// returned in normalized form.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalScapeName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	stripped := strings.Trim(strings.TrimPrefix(normalized, "scape-"), "-")
	if stripped != "" && stripped != normalized {
		candidates = append(candidates, stripped)
	}
	for _, c := range append([]string(nil), candidates...) {
		if trimmed := strings.TrimSuffix(c, "-sim"); trimmed != c && trimmed != "" {
			candidates = append(candidates, trimmed)
		}
	}
	return candidates
}

func canonicalScapeName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "-", "") {
	case "forage", "gridforage", "foodgrid", "forager":
		return Forage, true
	case "xor", "xormimic":
		return XOR, true
	default:
		return "", false
	}
}
