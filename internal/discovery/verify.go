package discovery

import (
	"context"
	"time"

	"digestpipe/internal/domain"
	"digestpipe/internal/fuzzy"
	"digestpipe/internal/itunes"
)

// MissingEpisode is an Apple-advertised episode that did not appear in the
// merged result set, surfaced for observability only (spec.md §4.2 "missing
// episodes" check; it never changes what gets processed).
type MissingEpisode struct {
	Title     string
	Published time.Time
}

// VerifyAgainstApple compares merged against the podcast's Apple feed and
// returns episodes Apple lists but merged does not contain, within the
// same cutoff window merged was already filtered to.
func VerifyAgainstApple(ctx context.Context, client *itunes.Client, podcast domain.Podcast, merged []domain.Episode, cutoff time.Time) ([]MissingEpisode, error) {
	if podcast.AppleID == "" || client == nil {
		return nil, nil
	}

	appleEpisodes, err := client.LookupEpisodes(ctx, podcast.AppleID, 0)
	if err != nil {
		return nil, err
	}

	var missing []MissingEpisode
	for _, appleEp := range appleEpisodes {
		published, parseErr := time.Parse(time.RFC3339, appleEp.ReleaseDate)
		if parseErr != nil || published.Before(cutoff) {
			continue
		}

		found := false
		for _, ep := range merged {
			if _, ok := fuzzy.MatchEpisode(fuzzy.MatchCandidate{Title: appleEp.Title, Published: published}, ep.Title, ep.Published, ""); ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, MissingEpisode{Title: appleEp.Title, Published: published})
		}
	}

	return missing, nil
}
