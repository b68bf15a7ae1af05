// Package settings loads the runtime flags and secrets described in
// spec.md §6 — API keys and operator toggles that come from the process
// environment and, optionally, an override file. This is distinct from
// internal/catalog, which loads the static podcast list: settings change
// per-run, the catalog changes only when the operator edits it.
package settings

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings is the fully-resolved runtime configuration for one pipeline run.
type Settings struct {
	OpenAIAPIKey       string
	AssemblyAIAPIKey   string
	SendGridAPIKey     string
	YouTubeAPIKey      string
	SpotifyClientID    string
	SpotifySecret      string
	PodcastIndexKey    string
	PodcastIndexSecret string

	TestingMode             bool
	MaxTranscriptionMinutes int
	VerifyApplePodcasts     bool
	FetchMissingEpisodes    bool
	DryRun                  bool

	// AudioCacheMaxAgeDays bounds how long a downloaded episode's audio
	// file is kept around for reuse across reruns before a cache sweep
	// may evict it; 0 disables eviction and keeps audio indefinitely.
	AudioCacheMaxAgeDays int
}

const envPrefix = "DIGESTPIPE_"

// defaults mirrors the teacher's Defaults() pattern for internal/config:
// every field gets a conservative value before any layer is merged in.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"testing_mode":              false,
		"max_transcription_minutes": 15,
		"verify_apple_podcasts":     true,
		"fetch_missing_episodes":    true,
		"dry_run":                   false,
		"audio_cache_max_age_days":  0,
	}
}

// Load resolves settings from, in increasing precedence: built-in
// defaults, an optional YAML overrides file, then environment variables
// prefixed with DIGESTPIPE_. An empty overridesPath skips the file layer.
func Load(overridesPath string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("load defaults: %w", err)
	}

	if overridesPath != "" {
		if err := k.Load(file.Provider(overridesPath), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("load settings file %s: %w", overridesPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Settings{}, fmt.Errorf("load environment: %w", err)
	}

	// The secrets table uses bare, unprefixed names (OPENAI_API_KEY, not
	// DIGESTPIPE_OPENAI_API_KEY) since they're shared with other tooling
	// in the operator's shell; load them through a second, prefix-less
	// provider restricted to the known secret names.
	if err := k.Load(env.ProviderWithValue("", ".", secretMapper), nil); err != nil {
		return Settings{}, fmt.Errorf("load secrets: %w", err)
	}

	s := Settings{
		OpenAIAPIKey:       k.String("openai_api_key"),
		AssemblyAIAPIKey:   k.String("assemblyai_api_key"),
		SendGridAPIKey:     k.String("sendgrid_api_key"),
		YouTubeAPIKey:      k.String("youtube_api_key"),
		SpotifyClientID:    k.String("spotify_client_id"),
		SpotifySecret:      k.String("spotify_client_secret"),
		PodcastIndexKey:    k.String("podcastindex_api_key"),
		PodcastIndexSecret: k.String("podcastindex_api_secret"),

		TestingMode:             k.Bool("testing_mode"),
		MaxTranscriptionMinutes: k.Int("max_transcription_minutes"),
		VerifyApplePodcasts:     k.Bool("verify_apple_podcasts"),
		FetchMissingEpisodes:    k.Bool("fetch_missing_episodes"),
		DryRun:                  k.Bool("dry_run"),
		AudioCacheMaxAgeDays:    k.Int("audio_cache_max_age_days"),
	}

	return s, nil
}

var secretEnvNames = map[string]string{
	"OPENAI_API_KEY":          "openai_api_key",
	"ASSEMBLYAI_API_KEY":      "assemblyai_api_key",
	"SENDGRID_API_KEY":        "sendgrid_api_key",
	"YOUTUBE_API_KEY":         "youtube_api_key",
	"SPOTIFY_CLIENT_ID":       "spotify_client_id",
	"SPOTIFY_CLIENT_SECRET":   "spotify_client_secret",
	"PODCASTINDEX_API_KEY":    "podcastindex_api_key",
	"PODCASTINDEX_API_SECRET": "podcastindex_api_secret",
}

// secretMapper keeps only the known bare secret env-var names, mapping each
// to its koanf key; everything else is dropped so an unrelated environment
// variable can never leak into the settings tree.
func secretMapper(key, value string) (string, interface{}) {
	mapped, ok := secretEnvNames[key]
	if !ok {
		return "", nil
	}
	return mapped, value
}

// HasASRCredentials reports whether enough is configured to transcribe via
// the external ASR provider (C6). It does not validate the key itself.
func (s Settings) HasASRCredentials() bool {
	return s.AssemblyAIAPIKey != ""
}

// HasSummarizerCredentials reports whether enough is configured to call the
// summarization model (C7).
func (s Settings) HasSummarizerCredentials() bool {
	return s.OpenAIAPIKey != ""
}
