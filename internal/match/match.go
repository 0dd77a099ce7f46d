// Package match scores engine-provided captions against product names.
package match

import (
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// AcceptThreshold is the minimum partial-ratio score at which a
// candidate title is considered a match for the product name.
const AcceptThreshold = 80.0

// Result is the outcome of validating one candidate title.
type Result struct {
	Accepted bool
	// Score is a partial similarity ratio in [0, 100].
	Score float64
}

// Validate scores candidateTitle against productName using a partial
// (substring-tolerant) similarity ratio. Comparison is case-insensitive
// and ignores punctuation and repeated whitespace. Deterministic, no I/O.
func Validate(candidateTitle, productName string) Result {
	score := float64(fuzzy.PartialRatio(normalize(productName), normalize(candidateTitle)))
	return Result{
		Accepted: score >= AcceptThreshold,
		Score:    score,
	}
}

// normalize lowercases s and folds punctuation runs into single spaces so
// "Acme-Widget, Pro" and "acme widget pro" compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
