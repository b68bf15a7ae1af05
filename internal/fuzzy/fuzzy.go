// Package fuzzy provides the title-matching primitives C3 and C5 use to
// line an RSS episode up against a candidate from the Apple directory or a
// video host: word-overlap scoring with episode-number and release-date
// proximity bonuses, generalized from the teacher's string-similarity
// helpers used for its episode search command.
package fuzzy

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// LevenshteinDistance calculates the edit distance between two strings.
func LevenshteinDistance(s1, s2 string) int {
	s1Lower := strings.ToLower(s1)
	s2Lower := strings.ToLower(s2)

	if len(s1Lower) == 0 {
		return len(s2Lower)
	}
	if len(s2Lower) == 0 {
		return len(s1Lower)
	}

	matrix := make([][]int, len(s1Lower)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2Lower)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1Lower); i++ {
		for j := 1; j <= len(s2Lower); j++ {
			cost := 1
			if s1Lower[i-1] == s2Lower[j-1] {
				cost = 0
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(s1Lower)][len(s2Lower)]
}

// Similarity returns a score between 0 and 1 indicating how similar two
// strings are. 1.0 means identical, 0.0 means completely different.
func Similarity(s1, s2 string) float64 {
	if s1 == "" && s2 == "" {
		return 1.0
	}

	maxLen := max(len(s1), len(s2))
	if maxLen == 0 {
		return 1.0
	}

	distance := LevenshteinDistance(s1, s2)
	return 1.0 - float64(distance)/float64(maxLen)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// WordOverlapScore returns the fraction of candidateTitle's words that
// fuzzy-match some word in targetTitle (Similarity ≥ 0.8 per word), in
// [0, 1].
func WordOverlapScore(candidateTitle, targetTitle string) float64 {
	candidateWords := words(candidateTitle)
	targetWords := words(targetTitle)
	if len(candidateWords) == 0 {
		return 0
	}

	matched := 0
	for _, cw := range candidateWords {
		for _, tw := range targetWords {
			if cw == tw || Similarity(cw, tw) >= 0.8 {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(candidateWords))
}

// MatchCandidate describes one item being scored against a target episode
// title (see MatchEpisode).
type MatchCandidate struct {
	Title         string
	Published     time.Time
	EpisodeNumber string
}

// MatchEpisode scores a candidate (from Apple lookup, a video host, or a
// scraped page) against the target episode per spec.md's word-overlap
// threshold: a candidate is a match when its overlap score is at least
// min(3, 0.5 * wordCount) words' worth of overlap, i.e.
// overlapScore*wordCount >= min(3, 0.5*wordCount). Matching episode
// numbers or a release date within 7 days each add a fixed confidence
// bonus, letting a correct numeric match win over a merely similar title.
func MatchEpisode(candidate MatchCandidate, targetTitle string, targetPublished time.Time, targetEpisodeNumber string) (score float64, isMatch bool) {
	targetWords := words(targetTitle)
	overlap := WordOverlapScore(candidate.Title, targetTitle)
	requiredWords := math.Min(3, 0.5*float64(len(targetWords)))
	requiredOverlap := 0.0
	if len(targetWords) > 0 {
		requiredOverlap = requiredWords / float64(len(targetWords))
	}

	score = overlap
	isMatch = overlap >= requiredOverlap && overlap > 0

	if candidate.EpisodeNumber != "" && targetEpisodeNumber != "" && candidate.EpisodeNumber == targetEpisodeNumber {
		score += 0.3
		isMatch = true
	}

	if !candidate.Published.IsZero() && !targetPublished.IsZero() {
		delta := candidate.Published.Sub(targetPublished)
		if delta < 0 {
			delta = -delta
		}
		if delta <= 7*24*time.Hour {
			score += 0.2
		}
	}

	return score, isMatch
}

// ContainsFuzzy checks if the query exists within the text with tolerance
// for typos. Returns true if the similarity is above an adaptive threshold.
func ContainsFuzzy(text, query string) bool {
	if query == "" {
		return false
	}

	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)

	if strings.Contains(textLower, queryLower) {
		return true
	}

	threshold := thresholdFor(queryLower)
	textWords := words(textLower)

	for _, word := range textWords {
		if Similarity(word, queryLower) >= threshold {
			return true
		}
	}

	queryWords := words(queryLower)
	if len(queryWords) == 0 {
		return false
	}

	matchCount := 0
	for _, qWord := range queryWords {
		wordThreshold := thresholdFor(qWord)
		for _, tWord := range textWords {
			if Similarity(tWord, qWord) >= wordThreshold {
				matchCount++
				break
			}
		}
	}

	return float64(matchCount)/float64(len(queryWords)) >= 0.6
}

func thresholdFor(word string) float64 {
	switch {
	case len(word) <= 3:
		return 0.8
	case len(word) <= 5:
		return 0.7
	default:
		return 0.65
	}
}

// MatchScore calculates a relevance score for how well text matches query.
// Higher scores indicate better matches; internal/sources.RankByTitle
// ranks titles with it.
func MatchScore(text, query string) float64 {
	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)

	if strings.HasPrefix(textLower, queryLower) {
		return 1.0
	}
	if strings.Contains(textLower, queryLower) {
		return 0.95
	}

	textWords := words(textLower)
	queryWords := words(queryLower)
	if len(queryWords) == 0 {
		return 0.0
	}

	var totalScore float64
	for _, qWord := range queryWords {
		var bestMatch float64
		for _, tWord := range textWords {
			if sim := Similarity(tWord, qWord); sim > bestMatch {
				bestMatch = sim
			}
		}
		totalScore += bestMatch
	}

	return (totalScore / float64(len(queryWords))) * 0.9
}
