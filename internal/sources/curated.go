package sources

import "digestpipe/internal/domain"

// curatedVideoMap maps {podcast name -> {episode number -> video URL}} for
// feeds whose canonical host is Substack/Cloudflare-protected and so never
// serves a reliable direct audio URL. Spec.md §4.4 calls this "a curated
// map {episode_number -> video URL} ... consulted before any search" for
// those podcasts specifically.
var curatedVideoMap = map[string]map[string]string{
	"American Optimist": {
		"118": "https://www.youtube.com/watch?v=pRoKi4VL_5s",
		"117": "https://www.youtube.com/watch?v=w1FRqBOxS8g",
		"115": "https://www.youtube.com/watch?v=YwmQzWGyrRQ",
		"114": "https://www.youtube.com/watch?v=TVg_DK8-kMw",
	},
}

// substackProtectedPodcasts disables the Direct strategy entirely, per
// spec.md §4.4's "Special handling" clause.
var substackProtectedPodcasts = map[string]bool{
	"American Optimist": true,
	"Dwarkesh Podcast":  true,
}

// IsSubstackProtected reports whether podcast is one of the catalog
// entries known to sit behind Substack/Cloudflare protection, so the
// router should skip Direct and start from YouTube.
func IsSubstackProtected(podcastName string) bool {
	return substackProtectedPodcasts[podcastName]
}

// DefaultCuratedLookup resolves ep against curatedVideoMap by podcast name
// and extracted episode number. Suitable as the Finder.Curated field.
func DefaultCuratedLookup(podcast domain.Podcast, ep domain.Episode) (string, bool) {
	byEpisode, ok := curatedVideoMap[podcast.Name]
	if !ok || ep.Metadata.EpisodeNumber == "" {
		return "", false
	}
	url, ok := byEpisode[ep.Metadata.EpisodeNumber]
	return url, ok
}
