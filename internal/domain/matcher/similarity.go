package matcher

import (
	"sort"
	"strings"
	"unicode"
)

// tokenizer splits names into comparable word sets
type tokenizer struct {
	suffixes map[string]bool
}

func newTokenizer(suffixes []string) tokenizer {
	set := make(map[string]bool, len(suffixes))
	for _, s := range suffixes {
		for _, tok := range splitWords(s) {
			set[tok] = true
		}
	}
	return tokenizer{suffixes: set}
}

// splitWords lowercases and splits on anything that is not a letter or digit
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokens returns the distinct words of name with corporate suffixes removed.
// If every word is a suffix ("SE", "Group Ltd") the suffixes are kept.
func (t tokenizer) tokens(name string) []string {
	words := splitWords(name)

	seen := make(map[string]bool, len(words))
	all := make([]string, 0, len(words))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		all = append(all, w)
		if !t.suffixes[w] {
			kept = append(kept, w)
		}
	}

	if len(kept) == 0 {
		kept = all
	}
	sort.Strings(kept)
	return kept
}

// Similarity scores two names in [0,1] with a token-set ratio.
// Token order is irrelevant and a name whose words are a subset of the
// other's scores 1.0.
func (t tokenizer) Similarity(a, b string) float64 {
	return tokenSetRatio(t.tokens(a), t.tokens(b))
}

// tokenSetRatio compares the shared words against each side's leftovers and
// keeps the best of the three pairings. Inputs must be sorted and distinct.
func tokenSetRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inB := make(map[string]bool, len(b))
	for _, w := range b {
		inB[w] = true
	}
	inA := make(map[string]bool, len(a))
	for _, w := range a {
		inA[w] = true
	}

	var sect, onlyA, onlyB []string
	for _, w := range a {
		if inB[w] {
			sect = append(sect, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for _, w := range b {
		if !inA[w] {
			onlyB = append(onlyB, w)
		}
	}

	base := strings.Join(sect, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(combinedA, combinedB)
	if base != "" {
		if r := ratio(base, combinedA); r > best {
			best = r
		}
		if r := ratio(base, combinedB); r > best {
			best = r
		}
	}
	return best
}

// ratio is the normalized indel similarity 2*LCS / (len(a)+len(b))
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// lcsLength computes the longest common subsequence with two rolling rows
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
