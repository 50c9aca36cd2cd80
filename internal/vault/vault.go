// Package vault provides authenticated symmetric encryption for integration
// secrets, keyed by a single process-wide master key, plus masking for display.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrMissingMasterKey is returned when no master key is configured.
	// The vault never invents a key at runtime: anything encrypted under
	// an unpersisted key is unrecoverable after a restart.
	ErrMissingMasterKey = errors.New("no master key configured")
	// ErrInvalidKey is returned when the master key has the wrong size or encoding.
	ErrInvalidKey = errors.New("invalid master key")
	// ErrEncryptionFailed is returned when encryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed is returned when a blob is malformed or fails authentication.
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	// MaskMarker separates the retained leading and trailing characters
	// of a masked secret. A submitted value containing it is treated as
	// an echoed display form, not new data.
	MaskMarker = "***"
	// MaskPlaceholder fully replaces secrets too short to mask partially.
	MaskPlaceholder = "****"
	// DefaultShowChars is the number of trailing characters a mask keeps.
	DefaultShowChars = 4
)

// Vault encrypts and decrypts secret strings with XChaCha20-Poly1305.
// The key is read-only after construction, so a single Vault is safe to
// share across concurrent requests.
type Vault struct {
	aead   cipher.AEAD
	logger *slog.Logger
}

// New creates a Vault from a raw 32-byte master key.
func New(key []byte, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(key) == 0 {
		return nil, ErrMissingMasterKey
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Vault{aead: aead, logger: logger}, nil
}

// NewKey generates a fresh random master key, base64-encoded.
func NewKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating master key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ParseKey decodes a base64-encoded master key and checks its size.
func ParseKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrMissingMasterKey
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64: %v", ErrInvalidKey, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// Encrypt encrypts a plaintext string and returns a base64-encoded blob
// of nonce||ciphertext. The nonce is freshly random per call, so
// encrypting the same plaintext twice yields different blobs.
// Empty input returns an empty blob.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		v.logger.Error("failed to generate nonce", "error", err)
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decodes and decrypts a blob produced by Encrypt. Empty input
// returns empty output. A malformed blob, a truncated blob, or a failed
// authentication tag (wrong key, tampering) returns ErrDecryptionFailed;
// the wrong key never silently yields wrong plaintext.
func (v *Vault) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: not valid base64: %v", ErrDecryptionFailed, err)
	}

	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize+v.aead.Overhead() {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}

	plaintext, err := v.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// Mask returns a display-safe form of a secret: the first 2 characters,
// the mask marker, then the last showChars characters. Secrets no longer
// than showChars collapse to the fixed placeholder so nothing leaks.
// Counting and slicing are rune-based so multibyte secrets mask to
// valid UTF-8 and short ones are fully hidden. showChars <= 0 means
// DefaultShowChars.
func (v *Vault) Mask(secret string, showChars int) string {
	if showChars <= 0 {
		showChars = DefaultShowChars
	}
	runes := []rune(secret)
	if len(runes) <= showChars {
		return MaskPlaceholder
	}
	return string(runes[:2]) + MaskMarker + string(runes[len(runes)-showChars:])
}

// Masked reports whether a submitted value is a display form produced by
// Mask rather than a new secret. The display form is "xx***yyyy", so the
// marker can appear anywhere in the value. A genuine secret containing
// the marker cannot be round-tripped through display; it must be
// re-entered in full to change it.
func (v *Vault) Masked(value string) bool {
	return value == MaskPlaceholder || strings.Contains(value, MaskMarker)
}

// EncryptMap encrypts every non-empty value in the map. Empty values
// pass through unchanged so unset optional fields are not corrupted.
func (v *Vault) EncryptMap(values map[string]string) (map[string]string, error) {
	if len(values) == 0 {
		return map[string]string{}, nil
	}

	encrypted := make(map[string]string, len(values))
	for key, value := range values {
		if value == "" {
			encrypted[key] = value
			continue
		}
		blob, err := v.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("encrypting field %s: %w", key, err)
		}
		encrypted[key] = blob
	}

	return encrypted, nil
}

// DecryptMap decrypts every non-empty value in the map. A value that
// fails authentication is never passed through as if it were plaintext:
// the key is omitted from the result, the failure is logged, and all
// failures are aggregated into the returned error. Callers get every
// readable value alongside a non-nil error naming the unreadable keys.
func (v *Vault) DecryptMap(values map[string]string) (map[string]string, error) {
	if len(values) == 0 {
		return map[string]string{}, nil
	}

	decrypted := make(map[string]string, len(values))
	var failed []string

	// Deterministic iteration keeps the aggregated error stable.
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		value := values[key]
		if value == "" {
			decrypted[key] = value
			continue
		}
		plaintext, err := v.Decrypt(value)
		if err != nil {
			v.logger.Error("failed to decrypt stored secret", "field", key, "error", err)
			failed = append(failed, key)
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
			continue
		}
		decrypted[key] = plaintext
	}

	if len(failed) > 0 {
		return decrypted, errors.Join(errs...)
	}
	return decrypted, nil
}
