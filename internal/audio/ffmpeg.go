package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpegConfig holds configuration for the FFmpeg toolchain.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FFprobePath is the path to the ffprobe binary.
	// If empty, "ffprobe" will be used.
	FFprobePath string

	// PreviewCodec is the audio codec for preview clips.
	// Default: libmp3lame
	PreviewCodec string

	// PreviewBitrate is the target bitrate of preview clips.
	// Default: 192k
	PreviewBitrate string

	// WaveformSampleRate is the rate PCM is decoded at for waveform analysis.
	// Peaks survive downsampling well enough for visualization.
	// Default: 8000
	WaveformSampleRate int
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		PreviewCodec:       "libmp3lame",
		PreviewBitrate:     "192k",
		WaveformSampleRate: 8000,
	}
}

// FFmpeg implements Clipper and PCMDecoder using the FFmpeg CLI.
type FFmpeg struct {
	config FFmpegConfig
}

// Compile-time verification that FFmpeg implements the stage collaborators.
var (
	_ Clipper    = (*FFmpeg)(nil)
	_ PCMDecoder = (*FFmpeg)(nil)
)

// NewFFmpeg creates a new FFmpeg-based audio toolchain.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &FFmpeg{config: cfg}
}

// Probe returns the duration of the audio file at inputPath.
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (time.Duration, error) {
	if err := validateInput(inputPath); err != nil {
		return 0, err
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	}

	out, err := f.run(ctx, f.config.FFprobePath, args)
	if err != nil {
		return 0, err
	}

	value := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable duration %q", ErrUndecodable, value)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// Clip writes the first d of inputPath to outputPath, re-encoded with the
// preview codec.
func (f *FFmpeg) Clip(ctx context.Context, inputPath, outputPath string, d time.Duration) error {
	if err := validateInput(inputPath); err != nil {
		return err
	}

	_, err := f.run(ctx, f.config.FFmpegPath, f.buildClipArgs(inputPath, outputPath, d))
	return err
}

// DecodePCM streams inputPath as mono signed 16-bit samples at the
// configured waveform sample rate. The expected sample count comes from
// ffprobe so the caller can size its buckets before reading.
func (f *FFmpeg) DecodePCM(ctx context.Context, inputPath string, read func(r io.Reader, expected int64) error) error {
	duration, err := f.Probe(ctx, inputPath)
	if err != nil {
		return err
	}
	expected := int64(duration.Seconds() * float64(f.config.WaveformSampleRate))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, f.config.FFmpegPath, f.buildDecodeArgs(inputPath)...)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s stdout: %w", f.config.FFmpegPath, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s execution failed: %w", f.config.FFmpegPath, err)
	}

	if readErr := read(stdout, expected); readErr != nil {
		// Stop ffmpeg instead of draining the rest of the stream.
		cancel()
		_ = cmd.Wait()
		return readErr
	}

	if err := cmd.Wait(); err != nil {
		return commandError(ctx, f.config.FFmpegPath, err, stderr.String())
	}
	return nil
}

// buildClipArgs constructs the FFmpeg arguments for a preview clip.
func (f *FFmpeg) buildClipArgs(inputPath, outputPath string, d time.Duration) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn", // Drop embedded cover art
		"-t", strconv.FormatFloat(d.Seconds(), 'f', 3, 64),
		"-c:a", f.config.PreviewCodec,
		"-b:a", f.config.PreviewBitrate,
		"-y",
		outputPath,
	}
}

// buildDecodeArgs constructs the FFmpeg arguments for raw PCM decoding to stdout.
func (f *FFmpeg) buildDecodeArgs(inputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(f.config.WaveformSampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}
}

// run executes a binary and returns its stdout. A non-zero exit is reported
// as ErrUndecodable because the inputs are local files we just wrote.
func (f *FFmpeg) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, commandError(ctx, bin, err, stderr.String())
	}

	return stdout.Bytes(), nil
}

func commandError(ctx context.Context, bin string, err error, stderr string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s cancelled: %w", bin, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with %d: %s",
			ErrUndecodable, bin, exitErr.ExitCode(), lastLine(stderr))
	}
	return fmt.Errorf("%s execution failed: %w", bin, err)
}

// validateInput checks if the input file exists and is readable.
func validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
