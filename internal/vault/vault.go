package vault

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/hszk-dev/beatvault/internal/domain/repository"
)

// Sealed identifies an encrypted master in cold storage.
type Sealed struct {
	ContentID   string
	KeyEnvelope string
}

// Encryptor encrypts a raw upload and places it in cold storage.
type Encryptor interface {
	EncryptAndStore(ctx context.Context, storageKey string) (*Sealed, error)
}

// Vault implements Encryptor on top of object storage for sources and a
// content-addressed store for ciphertext.
type Vault struct {
	objects   repository.ObjectStorage
	store     repository.ContentStore
	wrapper   *KeyWrapper
	chunkSize int
}

var _ Encryptor = (*Vault)(nil)

// New creates a Vault.
func New(objects repository.ObjectStorage, store repository.ContentStore, wrapper *KeyWrapper) *Vault {
	return &Vault{
		objects:   objects,
		store:     store,
		wrapper:   wrapper,
		chunkSize: DefaultChunkSize,
	}
}

// EncryptAndStore streams the object at storageKey through a freshly
// generated content key into the content store. The content key only leaves
// this function wrapped in the returned envelope.
func (v *Vault) EncryptAndStore(ctx context.Context, storageKey string) (*Sealed, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate content key: %w", err)
	}
	defer clear(key)

	prefix := make([]byte, prefixSize)
	if _, err := rand.Read(prefix); err != nil {
		return nil, fmt.Errorf("generate nonce prefix: %w", err)
	}

	sealer, err := NewSealer(key, v.chunkSize)
	if err != nil {
		return nil, err
	}

	src, err := v.objects.Download(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("storage download: %w", err)
	}
	defer func() { _ = src.Close() }()

	pr, pw := io.Pipe()
	sealed := make(chan error, 1)
	go func() {
		err := sealer.Seal(pw, src, prefix)
		_ = pw.CloseWithError(err)
		sealed <- err
	}()

	contentID, err := v.store.Put(ctx, pr)
	// Unblock the sealing goroutine if Put returned before draining the pipe.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	sealErr := <-sealed
	if err != nil {
		return nil, fmt.Errorf("store ciphertext: %w", err)
	}
	if sealErr != nil {
		return nil, fmt.Errorf("seal: %w", sealErr)
	}

	envelope, err := v.wrapper.Wrap(key, contentID)
	if err != nil {
		return nil, fmt.Errorf("wrap content key: %w", err)
	}

	return &Sealed{ContentID: contentID, KeyEnvelope: envelope}, nil
}

// Open decrypts a sealed master into dst.
func (v *Vault) Open(ctx context.Context, sealed Sealed, dst io.Writer) error {
	key, err := v.wrapper.Unwrap(sealed.KeyEnvelope, sealed.ContentID)
	if err != nil {
		return fmt.Errorf("unwrap content key: %w", err)
	}
	defer clear(key)

	sealer, err := NewSealer(key, v.chunkSize)
	if err != nil {
		return err
	}

	src, err := v.store.Get(ctx, sealed.ContentID)
	if err != nil {
		return fmt.Errorf("fetch ciphertext: %w", err)
	}
	defer func() { _ = src.Close() }()

	return sealer.Open(dst, src)
}
