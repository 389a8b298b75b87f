package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const envelopeVersion = "v1"

var (
	// ErrInvalidEnvelope is returned for envelopes that cannot be parsed.
	ErrInvalidEnvelope = errors.New("vault: invalid key envelope")

	// ErrUnknownKey is returned when an envelope names a key-encryption key
	// this wrapper does not hold.
	ErrUnknownKey = errors.New("vault: unknown key id")
)

// KeyWrapper seals content keys under a key-encryption key derived from a
// master secret. The resulting envelope is bound to the content it protects.
type KeyWrapper struct {
	keyID string
	kek   []byte
}

// NewKeyWrapper derives a key-encryption key from secret with HKDF-SHA256.
func NewKeyWrapper(secret []byte, keyID string) (*KeyWrapper, error) {
	if len(secret) < 32 {
		return nil, errors.New("vault: master secret must be at least 32 bytes")
	}
	if keyID == "" || strings.Contains(keyID, ".") {
		return nil, fmt.Errorf("vault: invalid key id %q", keyID)
	}

	kek := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("beatvault key wrap "+keyID))
	if _, err := io.ReadFull(kdf, kek); err != nil {
		return nil, fmt.Errorf("derive kek: %w", err)
	}

	return &KeyWrapper{keyID: keyID, kek: kek}, nil
}

// KeyID returns the identifier of the key-encryption key.
func (w *KeyWrapper) KeyID() string {
	return w.keyID
}

// Wrap seals contentKey, binding it to contentID.
// Format: v1.<key-id>.<base64url(nonce || ciphertext)>
func (w *KeyWrapper) Wrap(contentKey []byte, contentID string) (string, error) {
	aead, err := chacha20poly1305.NewX(w.kek)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(contentKey)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, contentKey, []byte(contentID))
	return fmt.Sprintf("%s.%s.%s", envelopeVersion, w.keyID, base64.RawURLEncoding.EncodeToString(sealed)), nil
}

// Unwrap recovers the content key from an envelope produced by Wrap for the
// same contentID.
func (w *KeyWrapper) Unwrap(envelope, contentID string) ([]byte, error) {
	parts := strings.Split(envelope, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidEnvelope
	}
	if parts[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidEnvelope, parts[0])
	}
	if parts[1] != w.keyID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, parts[1])
	}

	sealed, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	aead, err := chacha20poly1305.NewX(w.kek)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidEnvelope
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	key, err := aead.Open(nil, nonce, ciphertext, []byte(contentID))
	if err != nil {
		return nil, ErrAuthentication
	}
	return key, nil
}
