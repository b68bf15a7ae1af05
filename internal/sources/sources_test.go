package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"digestpipe/internal/domain"
)

func TestCandidatesSkipRSS(t *testing.T) {
	finder := &Finder{}
	podcast := domain.Podcast{RetryStrategy: domain.RetryStrategy{SkipRSS: true}}
	ep := domain.Episode{AudioURL: "https://example.com/a.mp3"}

	candidates := finder.Candidates(context.Background(), podcast, ep)
	for _, c := range candidates {
		if c == ep.AudioURL {
			t.Fatal("expected RSS audio url to be skipped")
		}
	}
}

func TestCandidatesAppendsRSSLast(t *testing.T) {
	finder := &Finder{}
	podcast := domain.Podcast{}
	ep := domain.Episode{AudioURL: "https://example.com/a.mp3"}

	candidates := finder.Candidates(context.Background(), podcast, ep)
	if len(candidates) == 0 || candidates[len(candidates)-1] != ep.AudioURL {
		t.Fatalf("expected RSS url as last-resort candidate, got %v", candidates)
	}
}

func TestCandidatesDeduplicates(t *testing.T) {
	finder := &Finder{Curated: func(domain.Podcast, domain.Episode) (string, bool) {
		return "https://example.com/a.mp3", true
	}}
	podcast := domain.Podcast{}
	ep := domain.Episode{AudioURL: "https://example.com/a.mp3"}

	candidates := finder.Candidates(context.Background(), podcast, ep)
	if len(candidates) != 1 {
		t.Fatalf("expected curated match to dedupe against RSS fallback, got %v", candidates)
	}
}

func TestIsSubstackProtected(t *testing.T) {
	if !IsSubstackProtected("American Optimist") {
		t.Error("expected American Optimist to be substack-protected")
	}
	if IsSubstackProtected("Some Other Show") {
		t.Error("expected unrelated show to not be substack-protected")
	}
}

func TestDefaultCuratedLookup(t *testing.T) {
	podcast := domain.Podcast{Name: "American Optimist"}
	ep := domain.Episode{Metadata: domain.EpisodeMetadata{EpisodeNumber: "118"}}

	url, ok := DefaultCuratedLookup(podcast, ep)
	if !ok || url == "" {
		t.Fatal("expected curated lookup to resolve episode 118")
	}
}

func TestValidateCandidateAcceptsOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if !validateCandidate(context.Background(), server.Client(), server.URL) {
		t.Fatal("expected 200 response to validate")
	}
}

func TestValidateCandidateRejectsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if validateCandidate(context.Background(), server.Client(), server.URL) {
		t.Fatal("expected 404 response to fail validation")
	}
}

func TestRankByTitlePrefersBetterMatch(t *testing.T) {
	titles := []string{"Completely unrelated video", "Building the Future with Jane Doe"}
	idx, score := RankByTitle(titles, "Building the Future with Jane Doe")
	if idx != 1 {
		t.Fatalf("expected index 1 to win, got %d (score %v)", idx, score)
	}
}
