// Package catalog loads the static, hierarchical podcasts catalog described
// in spec.md §6 — the YAML file the teacher's internal/config loads app
// settings from, generalized here to a list of podcasts instead of a
// single settings object.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"gopkg.in/yaml.v3"

	"digestpipe/internal/domain"
)

// entry mirrors the on-disk YAML shape; fields map 1:1 onto domain.Podcast
// except for defaulting rules applied in Load.
type entry struct {
	Name          string     `yaml:"name"`
	AppleID       string     `yaml:"apple_id,omitempty"`
	RSSFeeds      []string   `yaml:"rss_feeds,omitempty"`
	SearchTerm    string     `yaml:"search_term,omitempty"`
	RetryStrategy retryEntry `yaml:"retry_strategy,omitempty"`
}

type retryEntry struct {
	Primary            string `yaml:"primary,omitempty"`
	Fallback           string `yaml:"fallback,omitempty"`
	SkipRSS            bool   `yaml:"skip_rss,omitempty"`
	ForceApple         bool   `yaml:"force_apple,omitempty"`
	YouTubeChannel     string `yaml:"youtube_channel,omitempty"`
	YouTubeChannelName string `yaml:"youtube_channel_name,omitempty"`
}

type document struct {
	Podcasts []entry `yaml:"podcasts"`
}

// Load reads and validates the podcasts catalog at path, applying
// documented defaults for missing optional fields.
func Load(path string) ([]domain.Podcast, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	podcasts := make([]domain.Podcast, 0, len(doc.Podcasts))
	seen := make(map[string]bool, len(doc.Podcasts))
	for _, e := range doc.Podcasts {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog entry missing name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate podcast name: %s", name)
		}
		seen[name] = true

		podcasts = append(podcasts, domain.Podcast{
			Name:       name,
			AppleID:    strings.TrimSpace(e.AppleID),
			RSSFeeds:   e.RSSFeeds,
			SearchTerm: strings.TrimSpace(e.SearchTerm),
			RetryStrategy: domain.RetryStrategy{
				Primary:            defaultString(e.RetryStrategy.Primary, domain.StrategyDirect),
				Fallback:           e.RetryStrategy.Fallback,
				SkipRSS:            e.RetryStrategy.SkipRSS,
				ForceApple:         e.RetryStrategy.ForceApple,
				YouTubeChannel:     e.RetryStrategy.YouTubeChannel,
				YouTubeChannelName: e.RetryStrategy.YouTubeChannelName,
			},
		})
	}

	return podcasts, nil
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// Save writes the catalog back to disk in the same shape Load reads,
// mirroring the teacher's atomic rename-on-write pattern for config files.
func Save(path string, podcasts []domain.Podcast) error {
	doc := document{Podcasts: make([]entry, 0, len(podcasts))}
	for _, p := range podcasts {
		doc.Podcasts = append(doc.Podcasts, entry{
			Name:       p.Name,
			AppleID:    p.AppleID,
			RSSFeeds:   p.RSSFeeds,
			SearchTerm: p.SearchTerm,
			RetryStrategy: retryEntry{
				Primary:            p.RetryStrategy.Primary,
				Fallback:           p.RetryStrategy.Fallback,
				SkipRSS:            p.RetryStrategy.SkipRSS,
				ForceApple:         p.RetryStrategy.ForceApple,
				YouTubeChannel:     p.RetryStrategy.YouTubeChannel,
				YouTubeChannelName: p.RetryStrategy.YouTubeChannelName,
			},
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

// Ensure loads the catalog at path, creating it interactively on first run
// the way the teacher's internal/config.Ensure bootstraps a missing config
// file: if DIGESTPIPE_CATALOG_SEED names a podcast non-interactively (for
// scripted or CI runs), that single entry seeds the file; otherwise the
// operator is prompted for one or more podcasts to start with.
func Ensure(path string) ([]domain.Podcast, error) {
	podcasts, err := Load(path)
	if err == nil {
		return podcasts, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if seed := strings.TrimSpace(os.Getenv("DIGESTPIPE_CATALOG_SEED")); seed != "" {
		podcasts = []domain.Podcast{{
			Name:          seed,
			RetryStrategy: domain.RetryStrategy{Primary: domain.StrategyDirect},
		}}
		if err := Save(path, podcasts); err != nil {
			return nil, err
		}
		return podcasts, nil
	}

	podcasts, err = bootstrap()
	if err != nil {
		return nil, err
	}
	if err := Save(path, podcasts); err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}
	return podcasts, nil
}

// bootstrap prompts the operator for a starting set of podcasts when no
// catalog file exists yet, mirroring the teacher's survey-driven first-run
// prompt in internal/config.bootstrap.
func bootstrap() ([]domain.Podcast, error) {
	fmt.Println("No podcast catalog found — let's add at least one podcast to get started.")

	var podcasts []domain.Podcast
	for {
		name, err := askRequired(fmt.Sprintf("Podcast #%d name:", len(podcasts)+1))
		if err != nil {
			return nil, err
		}

		feed, err := askRequired("RSS feed URL (or Apple Podcasts ID if no feed):")
		if err != nil {
			return nil, err
		}

		entry := domain.Podcast{
			Name:          name,
			RetryStrategy: domain.RetryStrategy{Primary: domain.StrategyDirect},
		}
		if strings.HasPrefix(feed, "http://") || strings.HasPrefix(feed, "https://") {
			entry.RSSFeeds = []string{feed}
		} else {
			entry.AppleID = feed
		}
		podcasts = append(podcasts, entry)

		more := false
		if err := survey.AskOne(&survey.Confirm{Message: "Add another podcast?", Default: false}, &more); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil, fmt.Errorf("catalog setup cancelled")
			}
			return nil, err
		}
		if !more {
			return podcasts, nil
		}
	}
}

func askRequired(message string) (string, error) {
	var answer string
	prompt := &survey.Input{Message: message}
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(survey.Required)); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return "", fmt.Errorf("catalog setup cancelled")
		}
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Find returns the podcast with the given name, if present in the catalog.
func Find(podcasts []domain.Podcast, name string) (domain.Podcast, bool) {
	for _, p := range podcasts {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Podcast{}, false
}
