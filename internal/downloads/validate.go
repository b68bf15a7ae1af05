package downloads

import (
	"bytes"
	"context"
	"os"

	"digestpipe/internal/exectools"
)

const minValidAudioBytes = 1000

// audioSignatures are the known magic-byte prefixes spec.md §4.4 lists.
// ftyp is matched at offset 4 rather than 0.
var audioSignatures = [][]byte{
	[]byte("ID3"),
	{0xFF, 0xFB},
	{0xFF, 0xF3},
	{0xFF, 0xF2},
	[]byte("OggS"),
	[]byte("RIFF"),
	[]byte("fLaC"),
}

var htmlSignatures = [][]byte{
	[]byte("<!DOCTYPE"),
	[]byte("<!doctype"),
	[]byte("<html"),
	[]byte("<HTML"),
}

// ValidateAudioBytes implements spec.md §4.4's audio-validation rule from
// a header buffer and the file's total size, without requiring an
// external probe.
func ValidateAudioBytes(header []byte, size int64) bool {
	if size < minValidAudioBytes {
		return false
	}
	for _, sig := range htmlSignatures {
		if bytes.HasPrefix(header, sig) {
			return false
		}
	}
	for _, sig := range audioSignatures {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	if len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")) {
		return true
	}
	// Opus is carried in an Ogg container, whose OggS signature is already
	// checked above; a bare "Opus" tag can also appear a few bytes into
	// some muxers' header pages.
	if bytes.Contains(header[:min(len(header), 64)], []byte("Opus")) {
		return true
	}
	return false
}

// ValidateAudioFile reads path's header and applies ValidateAudioBytes,
// falling back to an external probe tool when the signature check is
// inconclusive and a runner is supplied.
func ValidateAudioFile(ctx context.Context, path string, runner *exectools.Runner) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.Size() < minValidAudioBytes {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, 16)
	n, _ := f.Read(header)
	header = header[:n]

	if ValidateAudioBytes(header, info.Size()) {
		return true, nil
	}
	if runner == nil || !runner.Available(exectools.ToolFFprobe) {
		return false, nil
	}
	return runner.ProbeIsAudio(ctx, path)
}
