package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// tokenContainmentScore is the score given when every token of the shorter
// label appears in the longer one ("Cardiology" vs "Cardiology - General").
const tokenContainmentScore = 0.85

// LabelSimilarity scores two labels in [0, 1]. Labels are case-folded,
// split on non-alphanumerics and singularized before comparison; the result
// is the best of normalized edit distance, token Jaccard and token containment.
func LabelSimilarity(a, b string) float64 {
	ta, tb := similarityTokens(a), similarityTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	na, nb := strings.Join(ta, " "), strings.Join(tb, " ")
	if na == nb {
		return 1
	}

	score := editSimilarity(na, nb)
	if j := tokenJaccard(ta, tb); j > score {
		score = j
	}
	if tokensContained(ta, tb) && tokenContainmentScore > score {
		score = tokenContainmentScore
	}
	return score
}

func similarityTokens(label string) []string {
	fields := strings.FieldsFunc(models.NormalizeLabel(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = inflection.Singular(f)
	}
	return fields
}

func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(ra, rb))/float64(longest)
}

func tokenJaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	union := len(set)
	shared := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func tokensContained(a, b []string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	set := make(map[string]bool, len(longer))
	for _, t := range longer {
		set[t] = true
	}
	for _, t := range shorter {
		if !set[t] {
			return false
		}
	}
	return true
}

// levenshteinDistance calculates the edit distance between two rune slices.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Use a single row of the DP table for space efficiency
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = minInt(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

func minInt(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// ColumnDataType is the value type a column header implies.
type ColumnDataType string

const (
	ColumnDataTypeUnknown ColumnDataType = ""
	ColumnDataTypeText    ColumnDataType = "text"
	ColumnDataTypeNumeric ColumnDataType = "numeric"
	ColumnDataTypeCount   ColumnDataType = "count"
)

var (
	countColumnPattern   = regexp.MustCompile(`(?i)\b(n|num|number|count|#)\b|orgs?\b|organizations?|incumbents?|providers?\b|respondents?`)
	numericColumnPattern = regexp.MustCompile(`(?i)\bp\d{2}\b|\d{2}(th)?\s*(percentile|%ile)|percentile|median|mean|average|\bavg\b|\btcc\b|wrvus?|salary|comp(ensation)?\b|\brate\b|\bcf\b|conversion|\$`)
	textColumnPattern    = regexp.MustCompile(`(?i)specialty|region|geograph|provider[\s_-]*type|variable|benchmark|\bname\b|description`)
)

// InferColumnDataType guesses the value type of a column from its header.
func InferColumnDataType(header string) ColumnDataType {
	switch {
	case textColumnPattern.MatchString(header):
		return ColumnDataTypeText
	case countColumnPattern.MatchString(header):
		return ColumnDataTypeCount
	case numericColumnPattern.MatchString(header):
		return ColumnDataTypeNumeric
	default:
		return ColumnDataTypeUnknown
	}
}
