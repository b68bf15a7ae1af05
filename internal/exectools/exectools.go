// Package exectools wraps the external media tools the pipeline shells out
// to (an ffmpeg-compatible audio tool, a yt-dlp-compatible media extractor,
// an ffprobe-compatible container prober), quoting arguments defensively
// and enforcing a caller-supplied timeout, the way the teacher's own
// subprocess-adjacent code favors explicit context deadlines over bare
// exec.Command calls.
package exectools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/tidwall/gjson"
)

// Tool names are resolved via PATH; callers substitute a test double by
// constructing a Runner with a different Lookup function.
const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
	ToolYTDLP   = "yt-dlp"
)

// Runner executes external tools with a bounded timeout.
type Runner struct {
	// Lookup resolves a tool name to its executable path, or returns an
	// error if the optional dependency isn't installed. Defaults to
	// exec.LookPath.
	Lookup func(name string) (string, error)
}

// NewRunner returns a Runner using exec.LookPath for tool resolution.
func NewRunner() *Runner {
	return &Runner{Lookup: exec.LookPath}
}

// Available reports whether tool can be found on PATH.
func (r *Runner) Available(tool string) bool {
	_, err := r.lookup()(tool)
	return err == nil
}

func (r *Runner) lookup() func(string) (string, error) {
	if r.Lookup != nil {
		return r.Lookup
	}
	return exec.LookPath
}

// Result carries captured stdout/stderr for callers that need to parse
// tool output (e.g. ffprobe's JSON format report).
type Result struct {
	Stdout string
	Stderr string
}

// Run executes tool with args under ctx, returning its captured stdout and
// stderr separately in a Result. argv
// is logged (post-quoting) at debug level by callers, never executed
// through a shell, so shellquote here is for producing a loggable
// command line rather than for injection safety.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) (Result, error) {
	path, err := r.lookup()(tool)
	if err != nil {
		return Result{}, fmt.Errorf("%s not available: %w", tool, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{Stdout: stdout.String(), Stderr: stderr.String()},
			fmt.Errorf("%s %s: %w: %s", tool, shellquote.Join(args...), err, stderr.String())
	}
	return Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// TrimAudio re-encodes-free-copies the first duration of src into dst
// using ffmpeg's stream-copy mode, per spec.md §4.6 step 1 ("prefer an
// external audio-tool with stream-copy (no re-encode)").
func (r *Runner) TrimAudio(ctx context.Context, src, dst string, maxSeconds int) error {
	_, err := r.Run(ctx, ToolFFmpeg,
		"-y", "-i", src,
		"-t", fmt.Sprintf("%d", maxSeconds),
		"-c", "copy",
		dst,
	)
	return err
}

// ProbeIsAudio asks ffprobe whether path's first stream is an audio
// stream, the external-probe fallback spec.md §4.4's audio validation
// allows when the magic-byte signature check is inconclusive.
func (r *Runner) ProbeIsAudio(ctx context.Context, path string) (bool, error) {
	result, err := r.Run(ctx, ToolFFprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, err
	}
	return bytes.Contains([]byte(result.Stdout), []byte("audio")), nil
}

// DownloadMedia invokes the external media extractor to fetch url into
// dst, optionally authenticated with a Netscape-format cookie file, per
// spec.md §4.4's YouTube strategy.
func (r *Runner) DownloadMedia(ctx context.Context, url, dst, cookieFile string) error {
	args := []string{
		"--no-playlist",
		"-f", "bestaudio/best",
		"-o", dst,
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args, url)

	_, err := r.Run(ctx, ToolYTDLP, args...)
	return err
}

// ConvertToMP3 re-encodes src to MP3 at dst, used after DownloadMedia when
// the extracted container isn't already MP3.
func (r *Runner) ConvertToMP3(ctx context.Context, src, dst string) error {
	_, err := r.Run(ctx, ToolFFmpeg, "-y", "-i", src, "-codec:a", "libmp3lame", "-qscale:a", "2", dst)
	return err
}

// VideoEntry is one result from ListVideos: a video's title, canonical
// watch URL and upload date, enough for fuzzy.MatchEpisode to score it
// against an RSS episode.
type VideoEntry struct {
	URL       string
	Title     string
	Published time.Time
}

// ListVideos asks the media extractor to enumerate (without downloading)
// up to limit videos from target, which may be a channel URL or a
// "ytsearch5:query" search expression, the mechanism the YouTube
// resolution step in spec.md §4.3 uses to turn a curated channel hint or
// a guest/episode-number search into scoreable candidates.
func (r *Runner) ListVideos(ctx context.Context, target string, limit int) ([]VideoEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	result, err := r.Run(ctx, ToolYTDLP,
		"--flat-playlist",
		"--dump-json",
		"--playlist-end", fmt.Sprintf("%d", limit),
		target,
	)
	if err != nil {
		return nil, err
	}

	var entries []VideoEntry
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parsed := gjson.Parse(line)
		id := parsed.Get("id").String()
		if id == "" {
			continue
		}
		url := parsed.Get("webpage_url").String()
		if url == "" {
			url = "https://www.youtube.com/watch?v=" + id
		}
		entries = append(entries, VideoEntry{
			URL:       url,
			Title:     parsed.Get("title").String(),
			Published: parseYTDLPDate(parsed.Get("upload_date").String()),
		})
	}
	return entries, nil
}

func parseYTDLPDate(raw string) time.Time {
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
