package similarity

import (
	"strings"
	"unicode"
)

// Score rates how closely a candidate title matches a query, from 0.0 (no
// resemblance) to 1.0 (same title after normalization). Whole-word
// containment is rewarded so that "Matrix" still ranks "The Matrix
// Collection" near the top; otherwise the score falls back to normalized
// edit distance.
func Score(candidate, query string) float64 {
	a := normalize(candidate)
	b := normalize(query)

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if containsWord(long, short) {
		return 0.85 + 0.15*float64(len(short))/float64(len(long))
	}

	dist := editDistance(a, b)
	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1.0 - float64(dist)/float64(maxLen)
}

// containsWord reports whether needle appears in haystack on word
// boundaries.
func containsWord(haystack, needle string) bool {
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		idx += offset
		left := idx == 0 || haystack[idx-1] == ' '
		rightEdge := idx + len(needle)
		right := rightEdge == len(haystack) || haystack[rightEdge] == ' '
		if left && right {
			return true
		}
		offset = idx + 1
	}
}

// normalize lowercases, maps '&' to "and", turns separator punctuation into
// spaces, and drops title noise: the word "collection" anywhere and a
// leading "the".
func normalize(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_' || r == ':':
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for i, w := range words {
		if w == "collection" {
			continue
		}
		if i == 0 && w == "the" && len(words) > 1 {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// editDistance is Levenshtein over runes, using two rolling rows instead of
// the full matrix.
func editDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
