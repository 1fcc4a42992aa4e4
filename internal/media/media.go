// Package media wraps the external transcoding tools used by segmentation:
// ffprobe to read a container's duration and ffmpeg to cut stream-copy slices.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cloo-solutions/procminer/internal/domain"
)

const (
	DefaultFFprobe = "ffprobe"
	DefaultFFmpeg  = "ffmpeg"
)

// Transcoder probes and cuts video files
type Transcoder interface {
	Probe(ctx context.Context, path string) (float64, error)
	Cut(ctx context.Context, src, dst string, startSeconds, lengthSeconds float64) error
}

// Runner executes a binary and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FFmpeg implements Transcoder with the ffprobe and ffmpeg binaries
type FFmpeg struct {
	probeBin  string
	ffmpegBin string
	run       Runner
}

// NewFFmpeg creates a Transcoder. Empty binary names fall back to PATH lookups.
func NewFFmpeg(ffprobeBin, ffmpegBin string) *FFmpeg {
	return NewFFmpegWithRunner(ffprobeBin, ffmpegBin, execRunner)
}

// NewFFmpegWithRunner creates a Transcoder with a custom command runner (used in tests)
func NewFFmpegWithRunner(ffprobeBin, ffmpegBin string, run Runner) *FFmpeg {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin == "" {
		ffprobeBin = DefaultFFprobe
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if ffmpegBin == "" {
		ffmpegBin = DefaultFFmpeg
	}
	return &FFmpeg{probeBin: ffprobeBin, ffmpegBin: ffmpegBin, run: run}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the container duration in seconds
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, domain.ErrDurationProbe.Wrap(errors.New("empty path"))
	}

	output, err := f.run(ctx, f.probeBin, "-v", "error", "-show_entries", "format=duration", "-of", "json", "--", path)
	if err != nil {
		return 0, domain.ErrDurationProbe.Wrap(fmt.Errorf("%s: %w: %s", path, err, strings.TrimSpace(string(output))))
	}

	seconds, err := ParseDuration(output)
	if err != nil {
		return 0, domain.ErrDurationProbe.Wrap(fmt.Errorf("%s: %w", path, err))
	}
	return seconds, nil
}

// ParseDuration extracts format.duration from ffprobe JSON output
func ParseDuration(output []byte) (float64, error) {
	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	raw := strings.TrimSpace(parsed.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, errors.New("duration not reported")
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return seconds, nil
}

// Cut writes [start, start+length) of src to dst without re-encoding
func (f *FFmpeg) Cut(ctx context.Context, src, dst string, startSeconds, lengthSeconds float64) error {
	args := []string{
		"-v", "error",
		"-ss", formatSeconds(startSeconds),
		"-i", src,
		"-t", formatSeconds(lengthSeconds),
		"-c", "copy",
		"-y", dst,
	}
	output, err := f.run(ctx, f.ffmpegBin, args...)
	if err != nil {
		return domain.ErrSliceCut.Wrap(fmt.Errorf("%s -> %s: %w: %s", src, dst, err, strings.TrimSpace(string(output))))
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
