// Package naming derives display labels for panel entries from layer IDs
// and adapter-reported names. A user override always wins and is never
// recomputed.
package naming

import "strings"

type Candidate struct {
	Name   string
	Source string // "user" | "adapter" | "derived"
}

// Prefixes commonly prepended by tooling; stripped before titling.
var idPrefixes = []string{
	"maplibre-",
	"mapbox-",
	"layer-",
}

// FromID turns a layer ID into a human label: strips tool prefixes,
// splits on separators, title-cases words.
//
//	"user-fill-1"    -> "User Fill 1"
//	"layer_counties" -> "Counties"
func FromID(id string) string {
	s := strings.TrimSpace(id)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	for _, p := range idPrefixes {
		if strings.HasPrefix(lower, p) && len(s) > len(p) {
			s = s[len(p):]
			break
		}
	}

	words := splitWords(s)
	if len(words) == 0 {
		return s
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

// ChooseBest picks the strongest candidate: user override, then the
// adapter-reported name, then the ID-derived label. Empty or whitespace
// candidates are rejected.
func ChooseBest(candidates []Candidate) (string, bool) {
	best := ""
	bestScore := -1
	for _, c := range candidates {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		s := score(c.Source)
		if s > bestScore {
			best = name
			bestScore = s
		}
	}
	if bestScore < 0 {
		return "", false
	}
	return best, true
}

func score(source string) int {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "user":
		return 100
	case "adapter":
		return 80
	case "derived":
		return 50
	default:
		return 10
	}
}

func splitWords(s string) []string {
	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, buf.String())
		buf.Reset()
	}
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '.' || r == ':':
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return out
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	// Keep short numeric or all-caps tokens as-is ("DEM", "3857").
	if w == strings.ToUpper(w) && len(w) <= 4 {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}
