package salvage

import (
	"sort"
	"strings"
)

// textKeys is the heuristic for "this key holds generated text". It is a
// best-effort match against upstream schema drift, not a contract.
var textKeys = []string{"text", "content", "message", "output"}

func keyLooksTextual(key string) bool {
	k := strings.ToLower(key)
	for _, want := range textKeys {
		if strings.Contains(k, want) {
			return true
		}
	}
	return false
}

// CollectTextPieces walks a decoded JSON value and gathers every string that
// sits under a text-like key, in a deterministic pre-order. Maps are visited
// in sorted-key order, direct matches before descent, so the top-level answer
// text always precedes anything nested inside it.
func CollectTextPieces(v any) []string {
	var pieces []string
	switch val := v.(type) {
	case string:
		pieces = append(pieces, val)
	case []any:
		for _, item := range val {
			pieces = append(pieces, CollectTextPieces(item)...)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := val[k].(string); ok && keyLooksTextual(k) {
				pieces = append(pieces, s)
			}
		}
		for _, k := range keys {
			if _, ok := val[k].(string); ok {
				continue
			}
			pieces = append(pieces, CollectTextPieces(val[k])...)
		}
	}
	return pieces
}

// JoinPieces builds the single text the salvage parser operates on.
func JoinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, "\n"))
}
