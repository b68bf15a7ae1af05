// Package transcripts implements C5, the Transcript Finder: it resolves a
// transcript for an episode without running ASR, trying the store cache,
// the episode's advertised transcript URL, an optional external directory
// API, and finally a matching video host's caption track, in that order.
package transcripts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/tidwall/gjson"

	"digestpipe/internal/domain"
)

// minAcceptedChars is spec.md §4.5's minimum-acceptance length, applied
// after normalization.
const minAcceptedChars = 1000

// CacheStore is the subset of internal/repository.Store the finder reads
// and writes through.
type CacheStore interface {
	GetTranscript(ctx context.Context, ep domain.Episode, mode domain.Mode) (text string, source domain.TranscriptSource, ok bool, err error)
	SaveTranscript(ctx context.Context, ep domain.Episode, mode domain.Mode, text string, source domain.TranscriptSource) error
}

// DirectoryClient looks a podcast/episode pair up against a credentialed
// external transcript directory, returning a fetchable transcript URL.
type DirectoryClient interface {
	LookupTranscriptURL(ctx context.Context, podcast, episodeTitle string) (string, bool, error)
}

// CaptionClient retrieves a video host's caption track for a resolved
// video URL, preferring manually created captions over auto-generated.
type CaptionClient interface {
	FetchCaptions(ctx context.Context, videoURL string) (string, bool, error)
}

// VideoResolver resolves a matching video URL for an episode, e.g. the
// curated table or search results internal/sources already produces.
type VideoResolver func(ctx context.Context, podcast domain.Podcast, ep domain.Episode) (string, bool)

// Finder implements the C5 lookup order.
type Finder struct {
	Store        CacheStore
	HTTPClient   *http.Client
	Directory    DirectoryClient
	Captions     CaptionClient
	ResolveVideo VideoResolver
}

// Find runs the full C5 order for one (episode, mode), returning the
// normalized transcript text and its source tag, or ok=false if nothing
// met the minimum-acceptance length.
func (f *Finder) Find(ctx context.Context, podcast domain.Podcast, ep domain.Episode, mode domain.Mode) (text string, source domain.TranscriptSource, ok bool) {
	if f.Store != nil {
		if cached, src, hit, err := f.Store.GetTranscript(ctx, ep, mode); err == nil && hit {
			return cached, src, true
		}
	}

	if ep.TranscriptURL != "" {
		if normalized, ok := f.fetchAndNormalize(ctx, ep.TranscriptURL); ok {
			f.save(ctx, ep, mode, normalized, domain.SourceAPIDirect)
			return normalized, domain.SourceAPIDirect, true
		}
	}

	if f.Directory != nil {
		if url, found, err := f.Directory.LookupTranscriptURL(ctx, podcast.Name, ep.Title); err == nil && found && url != "" {
			if normalized, ok := f.fetchAndNormalize(ctx, url); ok {
				f.save(ctx, ep, mode, normalized, domain.SourceAPIDirect)
				return normalized, domain.SourceAPIDirect, true
			}
		}
	}

	if f.Captions != nil && f.ResolveVideo != nil {
		if videoURL, found := f.ResolveVideo(ctx, podcast, ep); found {
			if captionText, found, err := f.Captions.FetchCaptions(ctx, videoURL); err == nil && found {
				normalized := normalizeText(captionText)
				if len(normalized) >= minAcceptedChars {
					f.save(ctx, ep, mode, normalized, domain.SourceScraped)
					return normalized, domain.SourceScraped, true
				}
			}
		}
	}

	return "", "", false
}

func (f *Finder) save(ctx context.Context, ep domain.Episode, mode domain.Mode, text string, source domain.TranscriptSource) {
	if f.Store == nil {
		return
	}
	f.Store.SaveTranscript(ctx, ep, mode, text, source)
}

// fetchAndNormalize retrieves rawURL's body and converts it to plain text,
// accepting only results that meet minAcceptedChars.
func (f *Finder) fetchAndNormalize(ctx context.Context, rawURL string) (string, bool) {
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return "", false
	}

	normalized := normalizeBody(resp.Header.Get("Content-Type"), body)
	if len(normalized) < minAcceptedChars {
		return "", false
	}
	return normalized, true
}

// normalizeBody converts a transcript payload to plain text, handling the
// JSON transcript-object case (concatenate "text" fields in array order)
// before falling back to HTML/plain-text stripping.
func normalizeBody(contentType string, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "json") || looksLikeJSON(trimmed) {
		if text, ok := extractJSONTranscript(trimmed); ok {
			return normalizeText(text)
		}
	}
	return normalizeText(trimmed)
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// extractJSONTranscript handles two shapes seen from podcast transcript
// JSON feeds: a top-level array of segments, or an object with a
// "segments"/"results" array, each segment carrying a "text" field.
func extractJSONTranscript(raw string) (string, bool) {
	if !json.Valid([]byte(raw)) {
		return "", false
	}

	var segments gjson.Result
	parsed := gjson.Parse(raw)
	if parsed.IsArray() {
		segments = parsed
	} else {
		for _, key := range []string{"segments", "results", "words", "transcript"} {
			if candidate := parsed.Get(key); candidate.IsArray() {
				segments = candidate
				break
			}
		}
	}
	if !segments.Exists() {
		return "", false
	}

	var b strings.Builder
	segments.ForEach(func(_, value gjson.Result) bool {
		text := value.Get("text").String()
		if text == "" {
			return true
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(text)
		return true
	})

	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

// normalizeText strips HTML markup (if any) to plain text and collapses
// whitespace, matching spec.md §4.5's "convert to plain text" step.
func normalizeText(raw string) string {
	plain, err := html2text.FromString(raw, html2text.Options{PrettyTables: false})
	if err != nil || strings.TrimSpace(plain) == "" {
		plain = raw
	}
	fields := strings.Fields(plain)
	return strings.Join(fields, " ")
}
