package summarize

// IsCacheStale scans a cached summary for known-fixed transcription errors
// that are absent from the current (already-corrected) transcript, per
// spec.md §4.7's cache validation step: if the summary still carries a
// mis-hearing the transcript no longer has, the summary predates the
// correction and must regenerate.
func IsCacheStale(cachedSummary, transcript string) bool {
	for _, p := range defaultCorrectionPatterns {
		if p.confidence < correctionConfidenceThreshold {
			continue
		}
		if p.pattern.MatchString(cachedSummary) && !p.pattern.MatchString(transcript) {
			return true
		}
	}
	return false
}
