package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	downloadErr error
	uploadErr   error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "http://storage.local/" + key, nil
}

func (m *memStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "http://storage.local/" + key, nil
}

func (m *memStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Stat(ctx context.Context, key string) (*repository.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	return &repository.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: m.types[key]}, nil
}

// fakeClipper treats each source byte as one millisecond of audio.
type fakeClipper struct {
	probeErr error
	clipErr  error

	clipped time.Duration
}

func (f *fakeClipper) Probe(ctx context.Context, inputPath string) (time.Duration, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return 0, err
	}
	return time.Duration(info.Size()) * time.Millisecond, nil
}

func (f *fakeClipper) Clip(ctx context.Context, inputPath, outputPath string, d time.Duration) error {
	if f.clipErr != nil {
		return f.clipErr
	}
	f.clipped = d
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	n := min(int(d/time.Millisecond), len(data))
	return os.WriteFile(outputPath, data[:n], 0644)
}

// rawDecoder streams the file as little-endian int16 PCM and announces the
// sample count from the file size.
type rawDecoder struct {
	err error
}

func (d *rawDecoder) DecodePCM(ctx context.Context, inputPath string, read func(r io.Reader, expected int64) error) error {
	if d.err != nil {
		return d.err
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return read(f, info.Size()/2)
}

// streamDecoder ignores the input file and emits a generated stream.
type streamDecoder struct {
	expected int64
	stream   func() io.Reader
}

func (d *streamDecoder) DecodePCM(ctx context.Context, inputPath string, read func(r io.Reader, expected int64) error) error {
	return read(d.stream(), d.expected)
}

// toneReader yields samples of a constant level with a single full-scale
// spike, without holding the stream in memory.
type toneReader struct {
	samples int64
	level   int16
	spikeAt int64
	pos     int64
}

func (r *toneReader) Read(p []byte) (int, error) {
	if r.pos >= r.samples {
		return 0, io.EOF
	}
	n := 0
	for n+1 < len(p) && r.pos < r.samples {
		v := r.level
		if r.pos == r.spikeAt {
			v = math.MaxInt16
		}
		binary.LittleEndian.PutUint16(p[n:], uint16(v))
		n += 2
		r.pos++
	}
	return n, nil
}

func pcmBytes(samples []int16) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
