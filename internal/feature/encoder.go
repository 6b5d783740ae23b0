package feature

import (
	"sort"
)

// Sentinel categories reserved in every fitted vocabulary. Empty values map
// to MISSING; values never seen at fit time map to UNKNOWN.
const (
	categoryMissing = "MISSING"
	categoryUnknown = "UNKNOWN"
)

// Encoder maps categorical string values to stable integer codes. The
// vocabulary is frozen at fit time.
type Encoder struct {
	Codes map[string]int
}

// FitEncoder builds a vocabulary from observed values. The MISSING and
// UNKNOWN sentinels are always part of the vocabulary, whether or not the
// sample contained them. Codes are assigned in sorted value order.
func FitEncoder(values []string) *Encoder {
	seen := make(map[string]struct{})
	vocab := make([]string, 0, len(values)+2)
	for _, v := range values {
		if v == "" {
			v = categoryMissing
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			vocab = append(vocab, v)
		}
	}
	for _, sentinel := range []string{categoryMissing, categoryUnknown} {
		if _, ok := seen[sentinel]; !ok {
			seen[sentinel] = struct{}{}
			vocab = append(vocab, sentinel)
		}
	}
	sort.Strings(vocab)

	codes := make(map[string]int, len(vocab))
	for i, v := range vocab {
		codes[v] = i
	}
	return &Encoder{Codes: codes}
}

// Encode returns the code for value. Empty maps to the MISSING code,
// unseen values to the UNKNOWN code.
func (e *Encoder) Encode(value string) int {
	if value == "" {
		value = categoryMissing
	}
	if code, ok := e.Codes[value]; ok {
		return code
	}
	return e.Codes[categoryUnknown]
}
