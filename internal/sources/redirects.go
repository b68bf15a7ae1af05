package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// cloudfrontAlternates and s3Regions are the two CDN hostname
// families spec.md §4.4 names as common alternates when a primary CDN edge
// starts rejecting a podcast's normal audio URL.
var cloudfrontAlternates = []string{"d1", "d2", "d3", "d4"}

var s3Regions = []string{"us-east-1", "us-west-2", "eu-west-1"}

// cdnAlternatives resolves the redirect chain of rawURL and synthesizes
// alternate CDN hostnames that commonly serve the same object, returning
// only those that validate as reachable.
func cdnAlternatives(ctx context.Context, client *http.Client, rawURL string) []string {
	resolved := followRedirects(ctx, client, rawURL)

	parsed, err := url.Parse(resolved)
	if err != nil {
		return nil
	}

	var candidates []string
	switch {
	case strings.Contains(parsed.Host, "cloudfront.net"):
		for _, prefix := range cloudfrontAlternates {
			alt := *parsed
			alt.Host = fmt.Sprintf("%s.cloudfront.net", prefix)
			candidates = append(candidates, alt.String())
		}
	case strings.Contains(parsed.Host, "amazonaws.com"):
		for _, region := range s3Regions {
			alt := *parsed
			alt.Host = fmt.Sprintf("s3-%s.amazonaws.com", region)
			candidates = append(candidates, alt.String())
		}
	}

	validateCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var valid []string
	for _, candidate := range candidates {
		if validateCandidate(validateCtx, client, candidate) {
			valid = append(valid, candidate)
		}
	}
	return valid
}

func followRedirects(ctx context.Context, client *http.Client, rawURL string) string {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	resp, err := client.Do(req)
	if err != nil {
		return rawURL
	}
	defer resp.Body.Close()
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return rawURL
}
