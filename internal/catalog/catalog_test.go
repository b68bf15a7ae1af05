package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"digestpipe/internal/domain"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "podcasts.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeCatalog(t, `
podcasts:
  - name: Example Show
    rss_feeds:
      - https://example.com/feed.xml
`)

	podcasts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(podcasts) != 1 {
		t.Fatalf("expected 1 podcast, got %d", len(podcasts))
	}
	if podcasts[0].RetryStrategy.Primary != domain.StrategyDirect {
		t.Fatalf("expected default primary strategy %q, got %q", domain.StrategyDirect, podcasts[0].RetryStrategy.Primary)
	}
}

func TestLoadRejectsMissingName(t *testing.T) {
	path := writeCatalog(t, `
podcasts:
  - rss_feeds: [https://example.com/feed.xml]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestLoadRejectsDuplicateName(t *testing.T) {
	path := writeCatalog(t, `
podcasts:
  - name: Dup
    rss_feeds: [https://a.example.com/feed.xml]
  - name: Dup
    rss_feeds: [https://b.example.com/feed.xml]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podcasts.yaml")

	podcasts := []domain.Podcast{
		{
			Name:     "Roundtrip Show",
			AppleID:  "12345",
			RSSFeeds: []string{"https://example.com/feed.xml"},
			RetryStrategy: domain.RetryStrategy{
				Primary:  domain.StrategyApplePodcasts,
				Fallback: domain.StrategyYouTubeSearch,
			},
		},
	}

	if err := Save(path, podcasts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "Roundtrip Show" {
		t.Fatalf("unexpected round-tripped catalog: %+v", loaded)
	}
	if loaded[0].RetryStrategy.Primary != domain.StrategyApplePodcasts {
		t.Fatalf("expected primary strategy preserved, got %q", loaded[0].RetryStrategy.Primary)
	}
}

func TestEnsureLoadsExistingCatalogWithoutPrompting(t *testing.T) {
	path := writeCatalog(t, `
podcasts:
  - name: Example Show
    rss_feeds:
      - https://example.com/feed.xml
`)

	podcasts, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(podcasts) != 1 || podcasts[0].Name != "Example Show" {
		t.Fatalf("unexpected podcasts: %+v", podcasts)
	}
}

func TestEnsureSeedsFromEnvWhenCatalogMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podcasts.yaml")

	t.Setenv("DIGESTPIPE_CATALOG_SEED", "Seeded Show")

	podcasts, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(podcasts) != 1 || podcasts[0].Name != "Seeded Show" {
		t.Fatalf("unexpected seeded podcasts: %+v", podcasts)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Ensure: %v", err)
	}
	if len(reloaded) != 1 || reloaded[0].Name != "Seeded Show" {
		t.Fatalf("catalog file was not persisted: %+v", reloaded)
	}
}

func TestFind(t *testing.T) {
	podcasts := []domain.Podcast{{Name: "A"}, {Name: "B"}}
	if _, ok := Find(podcasts, "B"); !ok {
		t.Fatal("expected to find podcast B")
	}
	if _, ok := Find(podcasts, "C"); ok {
		t.Fatal("did not expect to find podcast C")
	}
}
