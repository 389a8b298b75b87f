// Package vault encrypts full-quality masters before they reach cold storage.
//
// Content is sealed with XChaCha20-Poly1305 in fixed-size chunks so that
// arbitrarily large files never need to fit in memory. Each chunk nonce is
// a random per-stream prefix, a big-endian chunk counter, and a flag marking
// the final chunk, which makes reordering and truncation detectable.
package vault

import (
	"bufio"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the length of a content key.
	KeySize = chacha20poly1305.KeySize

	// DefaultChunkSize is the plaintext size of each sealed chunk.
	DefaultChunkSize = 64 * 1024

	prefixSize  = 16
	counterSize = 7
	maxCounter  = 1<<(8*counterSize) - 1
)

var magic = []byte("BVLT1")

var (
	// ErrAuthentication is returned when sealed data fails integrity checks.
	ErrAuthentication = errors.New("vault: message authentication failed")

	// ErrMalformed is returned when sealed data has an invalid header.
	ErrMalformed = errors.New("vault: malformed sealed stream")
)

// Sealer encrypts and decrypts streams under a single content key.
type Sealer struct {
	aead      cipher.AEAD
	chunkSize int
}

// NewSealer creates a Sealer for key. chunkSize <= 0 selects DefaultChunkSize.
func NewSealer(key []byte, chunkSize int) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Sealer{aead: aead, chunkSize: chunkSize}, nil
}

// Seal reads plaintext from src and writes the sealed stream to dst.
// prefix must be prefixSize random bytes unique to this stream.
func (s *Sealer) Seal(dst io.Writer, src io.Reader, prefix []byte) error {
	if len(prefix) != prefixSize {
		return fmt.Errorf("vault: nonce prefix must be %d bytes", prefixSize)
	}

	if _, err := dst.Write(magic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := dst.Write(prefix); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	r := bufio.NewReaderSize(src, s.chunkSize)
	buf := make([]byte, s.chunkSize, s.chunkSize+s.aead.Overhead())
	nonce := make([]byte, s.aead.NonceSize())

	for counter := uint64(0); ; counter++ {
		if counter > maxCounter {
			return errors.New("vault: stream too long")
		}

		n, err := io.ReadFull(r, buf)
		last := false
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		case err != nil:
			return fmt.Errorf("read plaintext: %w", err)
		default:
			if _, perr := r.Peek(1); errors.Is(perr, io.EOF) {
				last = true
			} else if perr != nil {
				return fmt.Errorf("read plaintext: %w", perr)
			}
		}

		chunkNonce(nonce, prefix, counter, last)
		out := s.aead.Seal(buf[:0], nonce, buf[:n], nil)
		if _, err := dst.Write(out); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		buf = buf[:s.chunkSize]

		if last {
			return nil
		}
	}
}

// Open reads a sealed stream from src and writes the plaintext to dst.
// Plaintext is written chunk by chunk as each chunk authenticates, so a
// failure part way through leaves a partial prefix in dst.
func (s *Sealer) Open(dst io.Writer, src io.Reader) error {
	header := make([]byte, len(magic)+prefixSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return fmt.Errorf("%w: short header", ErrMalformed)
	}
	if string(header[:len(magic)]) != string(magic) {
		return fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	prefix := header[len(magic):]

	sealedSize := s.chunkSize + s.aead.Overhead()
	r := bufio.NewReaderSize(src, sealedSize)
	buf := make([]byte, sealedSize)
	nonce := make([]byte, s.aead.NonceSize())

	for counter := uint64(0); ; counter++ {
		if counter > maxCounter {
			return errors.New("vault: stream too long")
		}

		n, err := io.ReadFull(r, buf)
		last := false
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		case err != nil:
			return fmt.Errorf("read sealed: %w", err)
		default:
			if _, perr := r.Peek(1); errors.Is(perr, io.EOF) {
				last = true
			} else if perr != nil {
				return fmt.Errorf("read sealed: %w", perr)
			}
		}

		if n < s.aead.Overhead() {
			return ErrAuthentication
		}

		chunkNonce(nonce, prefix, counter, last)
		plain, err := s.aead.Open(buf[:0], nonce, buf[:n], nil)
		if err != nil {
			return ErrAuthentication
		}
		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("write plaintext: %w", err)
		}
		buf = buf[:sealedSize]

		if last {
			return nil
		}
	}
}

// chunkNonce fills nonce as prefix || counter (7 bytes, big-endian) || last.
func chunkNonce(nonce, prefix []byte, counter uint64, last bool) {
	copy(nonce, prefix)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	copy(nonce[prefixSize:], ctr[8-counterSize:])
	nonce[len(nonce)-1] = 0
	if last {
		nonce[len(nonce)-1] = 1
	}
}
