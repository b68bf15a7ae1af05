package itunes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("term"); got != "example" {
			t.Errorf("unexpected term: %q", got)
		}
		w.Write([]byte(`{"results":[{"collectionId":123,"collectionName":"Example Show","artistName":"Example Author","feedUrl":"https://example.com/feed.xml","primaryGenreName":"Technology"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	results, err := client.Search(context.Background(), "example", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Example Show" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchRejectsEmptyTerm(t *testing.T) {
	client := NewClient(nil, "")
	if _, err := client.Search(context.Background(), "  ", 5); err == nil {
		t.Fatal("expected error for empty term")
	}
}

func TestLookupPodcastNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	if _, err := client.LookupPodcast(context.Background(), "999"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestLookupEpisodesFiltersWrapperType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"wrapperType":"track","collectionId":123},
			{"wrapperType":"podcastEpisode","trackId":456,"trackName":"Episode One","episodeUrl":"https://apple.example.com/ep1.mp3","releaseDate":"2026-01-02T03:00:00Z"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	episodes, err := client.LookupEpisodes(context.Background(), "123", 0)
	if err != nil {
		t.Fatalf("LookupEpisodes: %v", err)
	}
	if len(episodes) != 1 || episodes[0].Title != "Episode One" {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}
}
