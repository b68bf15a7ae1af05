package summarize

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// correctionPattern is a curated, high-confidence transcription-error fix
// applied deterministically before any LLM call, grounded on known
// mis-hearings of recurring tech/finance figures and terms.
type correctionPattern struct {
	pattern     *regexp.Regexp
	replacement string
	confidence  float64
}

const correctionConfidenceThreshold = 0.8

var defaultCorrectionPatterns = []correctionPattern{
	{regexp.MustCompile(`(?i)\b(Heath|Hieth)\s+(Raboy|Rabois|Raboys)\b`), "Keith Rabois", 0.95},
	{regexp.MustCompile(`(?i)\b(Jason|Jayson)\s+(Kalkanis|Kalakanis|Calicanis)\b`), "Jason Calacanis", 0.9},
	{regexp.MustCompile(`(?i)\bChamath\s+(Palihapatiya|Palihapitiya)\b`), "Chamath Palihapitiya", 0.9},
	{regexp.MustCompile(`(?i)\bDavid\s+Sachs\b`), "David Sacks", 0.95},
	{regexp.MustCompile(`(?i)\bPeter\s+(Teal|Theil)\b`), "Peter Thiel", 0.9},
	{regexp.MustCompile(`(?i)\bElon\s+Must\b`), "Elon Musk", 0.95},
	{regexp.MustCompile(`(?i)\bOpen\s*AI\b`), "OpenAI", 0.95},
	{regexp.MustCompile(`(?i)\b(Founder's|Founders')\s+Fund\b`), "Founders Fund", 0.9},
	{regexp.MustCompile(`(?i)\bAndreessen\s+(Horowitz|Horovitz)\b`), "Andreessen Horowitz", 0.9},
	{regexp.MustCompile(`(?i)\bNvidia\b`), "NVIDIA", 0.85},
	{regexp.MustCompile(`\bL\.L\.M\.\b`), "LLM", 0.9},
	{regexp.MustCompile(`\bA\.I\.\b`), "AI", 0.9},
	{regexp.MustCompile(`\bI\.P\.O\.\b`), "IPO", 0.9},
}

// Correction records one applied fix for observability.
type Correction struct {
	Incorrect  string
	Correct    string
	Confidence float64
}

// ApplyHighConfidenceCorrections runs the curated deterministic pattern
// list over text, applying only patterns at or above the confidence
// threshold, per spec.md §4.7's entity correction pre-pass.
func ApplyHighConfidenceCorrections(text string) (string, []Correction) {
	var applied []Correction
	for _, p := range defaultCorrectionPatterns {
		if p.confidence < correctionConfidenceThreshold {
			continue
		}
		if match := p.pattern.FindString(text); match != "" {
			replaced := p.pattern.ReplaceAllString(text, p.replacement)
			if replaced == text {
				continue
			}
			text = replaced
			applied = append(applied, Correction{Incorrect: match, Correct: p.replacement, Confidence: p.confidence})
		}
	}
	return text, applied
}

var potentialEntityPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b|\b[A-Z]{2,}\b`)

var commonCapitalizedWords = map[string]bool{
	"This": true, "That": true, "When": true, "Where": true,
	"What": true, "Which": true, "There": true, "These": true, "Those": true,
}

// extractPotentialEntities finds capitalized-word runs and all-caps
// abbreviations that are candidates for LLM-based entity validation.
func extractPotentialEntities(text string) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, match := range potentialEntityPattern.FindAllString(text, -1) {
		if len(match) <= 3 || commonCapitalizedWords[match] || seen[match] {
			continue
		}
		seen[match] = true
		entities = append(entities, match)
	}
	return entities
}

// ValidateEntities asks the LLM to propose additional incorrect->correct
// corrections with confidence scores over a transcript's candidate
// entities; callers should apply only those scoring >= 0.8.
func ValidateEntities(ctx context.Context, client LLMClient, transcript, podcastName string) ([]Correction, error) {
	entities := extractPotentialEntities(transcript)
	if len(entities) == 0 {
		return nil, nil
	}

	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return nil, err
	}

	prompt := "Analyze these potential entities from a " + podcastName + " transcript and identify likely transcription errors:\n\n" +
		"POTENTIAL ENTITIES:\n" + string(entitiesJSON) + "\n\n" +
		"CONTEXT: This is from a podcast about technology, investing, and business.\n\n" +
		"For each entity that seems like a transcription error, provide the incorrect transcription, the correct entity name, and a confidence score (0-1). " +
		`Return as JSON: {"corrections": [{"incorrect": "", "correct": "", "confidence": 0.0}]}`

	raw, err := client.Complete(ctx, CompletionRequest{
		System:      "You are an expert at identifying transcription errors in podcast transcripts, especially for tech and finance personalities.",
		User:        prompt,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	parsed := gjson.Get(raw, "corrections")
	if !parsed.IsArray() {
		return nil, nil
	}

	var corrections []Correction
	parsed.ForEach(func(_, value gjson.Result) bool {
		confidence := value.Get("confidence").Float()
		if confidence < correctionConfidenceThreshold {
			return true
		}
		incorrect := strings.TrimSpace(value.Get("incorrect").String())
		correct := strings.TrimSpace(value.Get("correct").String())
		if incorrect == "" || correct == "" {
			return true
		}
		corrections = append(corrections, Correction{Incorrect: incorrect, Correct: correct, Confidence: confidence})
		return true
	})
	return corrections, nil
}

// ApplyCorrections rewrites every occurrence of each correction's
// Incorrect text with its Correct text.
func ApplyCorrections(text string, corrections []Correction) string {
	for _, c := range corrections {
		text = strings.ReplaceAll(text, c.Incorrect, c.Correct)
	}
	return text
}
