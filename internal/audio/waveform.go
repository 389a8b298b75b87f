package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

// WaveformGenerator derives a fixed-length amplitude summary from a source.
type WaveformGenerator interface {
	GenerateWaveform(ctx context.Context, src Source) ([]float64, error)
}

// PCMDecoder streams a local audio file as mono little-endian 16-bit samples.
type PCMDecoder interface {
	// DecodePCM calls read with the decoded stream and the number of samples
	// the container duration announces. read must consume r to EOF.
	DecodePCM(ctx context.Context, inputPath string, read func(r io.Reader, expected int64) error) error
}

// WaveformConfig holds waveform generation settings.
type WaveformConfig struct {
	// Points is the number of amplitude values produced.
	Points int

	// TempDir is the directory for scratch files.
	TempDir string
}

// DefaultWaveformConfig returns the default waveform settings.
func DefaultWaveformConfig() WaveformConfig {
	return WaveformConfig{
		Points:  DefaultWaveformPoints,
		TempDir: os.TempDir(),
	}
}

// PeakWaveformGenerator implements WaveformGenerator with per-bucket peaks.
type PeakWaveformGenerator struct {
	storage repository.ObjectStorage
	decoder PCMDecoder
	config  WaveformConfig
}

var _ WaveformGenerator = (*PeakWaveformGenerator)(nil)

// NewWaveformGenerator creates a new PeakWaveformGenerator.
func NewWaveformGenerator(storage repository.ObjectStorage, decoder PCMDecoder, cfg WaveformConfig) *PeakWaveformGenerator {
	if cfg.Points <= 0 {
		cfg.Points = DefaultWaveformPoints
	}
	return &PeakWaveformGenerator{
		storage: storage,
		decoder: decoder,
		config:  cfg,
	}
}

// GenerateWaveform returns exactly config.Points values in [0, 1].
// The same source always yields the same values.
func (g *PeakWaveformGenerator) GenerateWaveform(ctx context.Context, src Source) ([]float64, error) {
	dir, cleanup, err := workDir(g.config.TempDir, "waveform-"+src.AssetID.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("waveform workspace: %w", err)
	}
	defer cleanup()

	inputPath, err := fetchToFile(ctx, g.storage, src.StorageKey, dir)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	var (
		peaks []float64
		seen  int64
	)
	err = g.decoder.DecodePCM(ctx, inputPath, func(r io.Reader, expected int64) error {
		folder := newPeakFolder(g.config.Points, expected)
		if err := folder.readFrom(r); err != nil {
			return err
		}
		peaks, seen = folder.peaks(), folder.seen
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if seen == 0 {
		return nil, fmt.Errorf("%w: no samples decoded", ErrUndecodable)
	}

	return peaks, nil
}

// Peaks splits samples into points equal buckets and returns the peak
// absolute amplitude of each, normalized to [0, 1] and rounded to four
// decimals. When there are fewer samples than points, trailing buckets are 0.
func Peaks(samples []int16, points int) []float64 {
	if points <= 0 {
		return nil
	}
	folder := newPeakFolder(points, int64(len(samples)))
	for _, v := range samples {
		folder.add(v)
	}
	return folder.peaks()
}

// peakFolder reduces a sample stream to per-bucket peaks in O(points)
// memory. Buckets are sized from the expected sample count; samples past
// it fold into the last bucket and buckets the stream never reaches stay 0.
type peakFolder struct {
	points   int64
	expected int64
	seen     int64
	max      []int32
}

func newPeakFolder(points int, expected int64) *peakFolder {
	return &peakFolder{
		points:   int64(points),
		expected: expected,
		max:      make([]int32, points),
	}
}

func (f *peakFolder) add(s int16) {
	i := f.seen
	if f.expected >= f.points {
		i = f.seen * f.points / f.expected
	}
	i = min(i, f.points-1)
	f.seen++

	v := int32(s)
	if v < 0 {
		v = -v
	}
	if v > f.max[i] {
		f.max[i] = v
	}
}

// readFrom folds little-endian 16-bit samples from r until EOF. A trailing
// odd byte is ignored.
func (f *peakFolder) readFrom(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64<<10)
	var pair [2]byte
	for {
		if _, err := io.ReadFull(br, pair[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read pcm: %w", err)
		}
		f.add(int16(uint16(pair[0]) | uint16(pair[1])<<8))
	}
}

func (f *peakFolder) peaks() []float64 {
	out := make([]float64, len(f.max))
	for i, peak := range f.max {
		out[i] = round4(math.Min(float64(peak)/math.MaxInt16, 1))
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
