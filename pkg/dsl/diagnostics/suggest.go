package diagnostics

import (
	"fmt"
	"strings"
)

// maxSuggestDistance is the largest edit distance still offered as a suggestion.
const maxSuggestDistance = 3

// Suggest returns a "did you mean" hint for name among candidates, or "" when
// nothing is close. Comparison ignores case.
func Suggest(name string, candidates []string) string {
	best, ok := Closest(name, candidates)
	if !ok {
		return ""
	}
	return fmt.Sprintf("did you mean %q?", best)
}

// Closest returns the candidate nearest to name by Levenshtein distance. Ties
// go to the earlier candidate. An exact match yields no suggestion.
func Closest(name string, candidates []string) (string, bool) {
	minDistance := maxSuggestDistance + 1
	var bestMatch string
	lower := strings.ToLower(name)
	for _, c := range candidates {
		if c == name {
			return "", false
		}
		dist := levenshteinDistance(lower, strings.ToLower(c))
		if dist < minDistance {
			minDistance = dist
			bestMatch = c
		}
	}
	if bestMatch == "" || minDistance > len([]rune(name))/2+1 {
		return "", false
	}
	return bestMatch, true
}

// levenshteinDistance computes the edit distance between two strings by rune.
func levenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}
	a, b := []rune(s1), []rune(s2)

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
