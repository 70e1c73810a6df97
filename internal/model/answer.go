package model

import "sort"

// Answer is a candidate's current answer to one question: a single value for
// single-choice/written/coding questions, multiple values for multi-select.
// Answers carry last-write-wins semantics per question id.
type Answer []string

// IsEmpty reports whether the answer counts as unanswered for progress
// calculation.
func (a Answer) IsEmpty() bool {
	for _, v := range a {
		if v != "" {
			return false
		}
	}
	return true
}

// EqualSet compares two answers as sets, ignoring order and duplicates.
// Used only at scoring time — answers are never validated at write time.
func (a Answer) EqualSet(other []string) bool {
	return normalize(a) == normalize(other)
}

func normalize(values []string) string {
	seen := make(map[string]struct{}, len(values))
	uniq := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	sort.Strings(uniq)
	joined := ""
	for i, v := range uniq {
		if i > 0 {
			joined += "\x00"
		}
		joined += v
	}
	return joined
}
