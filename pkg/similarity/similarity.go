package similarity

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// Jaccard computes token-set overlap between two texts: lower-case, split on
// runs of non-letter/non-digit characters, then |A∩B| / |A∪B|. Two empty
// texts are treated as identical (1.0); exactly one empty text scores 0.0.
func Jaccard(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}

	union := len(setA)
	for s := range setB {
		if !setA[s] {
			union++
		}
	}

	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// Tokenize lower-cases text and splits it on runs of whitespace and
// punctuation into tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Levenshtein computes classic edit distance (insert/delete/substitute each
// cost 1) over grapheme clusters. O(len1·len2).
func Levenshtein(a, b string) int {
	s1 := graphemes(a)
	s2 := graphemes(b)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	rows := len(s1) + 1
	cols := len(s2) + 1

	// Two rows instead of the full table; same recurrence.
	prev := make([]int, cols)
	curr := make([]int, cols)

	for j := 0; j < cols; j++ {
		prev[j] = j
	}

	for i := 1; i < rows; i++ {
		curr[0] = i

		for j := 1; j < cols; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}

			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}

		prev, curr = curr, prev
	}

	return prev[cols-1]
}

// LevenshteinSimilarity maps edit distance into [0, 1]:
// 1 − distance/max(len1, len2), lengths counted in grapheme clusters.
// Two empty texts score 1.0; exactly one empty text scores 0.0.
func LevenshteinSimilarity(a, b string) float64 {
	lenA := uniseg.GraphemeClusterCount(a)
	lenB := uniseg.GraphemeClusterCount(b)

	maxLen := lenA
	if lenB > maxLen {
		maxLen = lenB
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := Levenshtein(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}

// Combined blends the two metrics as a weighted average:
// (jaccard·jaccardWeight + edit·editWeight) / (jaccardWeight + editWeight).
// A weight sum ≤ 0 returns 0.0 rather than dividing by zero.
func Combined(a, b string, jaccardWeight, editWeight float64) float64 {
	sum := jaccardWeight + editWeight
	if !(sum > 0) {
		return 0.0
	}
	j := Jaccard(a, b)
	e := LevenshteinSimilarity(a, b)
	return (j*jaccardWeight + e*editWeight) / sum
}

func tokenSet(text string) map[string]bool {
	tokens := Tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func graphemes(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, len(s))
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		out = append(out, gr.Str())
	}
	return out
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
