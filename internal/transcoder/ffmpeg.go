// Package transcoder wraps the external ffmpeg/ffprobe binaries behind a
// narrow capability interface so the edit orchestration stays independent of
// the transcoding backend.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Operation describes a single-source edit: an optional half-open trim
// interval [TrimStart, TrimEnd) and an audio mute flag.
type Operation struct {
	TrimStart *float64
	TrimEnd   *float64
	MuteAudio bool
}

// Transcoder is the external media processing capability.
type Transcoder interface {
	// Transcode applies op to src and writes an mp4 to dst.
	Transcode(ctx context.Context, src, dst string, op Operation) error
	// Concatenate joins srcs in the order given and writes an mp4 to dst.
	Concatenate(ctx context.Context, srcs []string, dst string) error
	// Probe returns the duration of src in seconds.
	Probe(ctx context.Context, src string) (float64, error)
}

// FFmpeg shells out to ffmpeg/ffprobe.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

// NewFFmpeg creates an FFmpeg transcoder. Empty paths default to the binaries
// on PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string, logger *zap.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

var _ Transcoder = (*FFmpeg)(nil)

// Transcode re-encodes src to H.264/AAC mp4, applying trim and mute.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string, op Operation) error {
	args := []string{"-y"}
	if op.TrimStart != nil {
		args = append(args, "-ss", formatSeconds(*op.TrimStart))
	}
	args = append(args, "-i", src)
	if op.TrimStart != nil && op.TrimEnd != nil {
		args = append(args, "-t", formatSeconds(*op.TrimEnd-*op.TrimStart))
	}
	if op.MuteAudio {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", "aac")
	}
	args = append(args, "-c:v", "libx264", "-f", "mp4", dst)
	return f.run(ctx, args)
}

// Concatenate joins the sources with the concat filter, normalizing to one
// video and one audio stream.
func (f *FFmpeg) Concatenate(ctx context.Context, srcs []string, dst string) error {
	args := []string{"-y"}
	for _, src := range srcs {
		args = append(args, "-i", src)
	}
	var filter strings.Builder
	for i := range srcs {
		fmt.Fprintf(&filter, "[%d:v][%d:a]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", len(srcs))
	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[outv]", "-map", "[outa]",
		"-c:v", "libx264", "-c:a", "aac", "-f", "mp4", dst)
	return f.run(ctx, args)
}

// Probe returns the container duration of src in seconds.
func (f *FFmpeg) Probe(ctx context.Context, src string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", src, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	f.logger.Debug("ffmpeg start", zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// tail returns the last n bytes of s; ffmpeg puts the useful error at the end.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
