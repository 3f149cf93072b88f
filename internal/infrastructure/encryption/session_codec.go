package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/luknerlumina/patientflow/pkg/secrets"
)

const (
	keySize    = 32
	hkdfInfo   = "patientflow session key"
	versionTag = "v"
)

var (
	// ErrUnknownKeyVersion is returned when a payload was sealed with a key that is no longer configured
	ErrUnknownKeyVersion = errors.New("no key configured for payload version")
	// ErrMalformedPayload is returned for payloads that are not base64 AES-GCM output
	ErrMalformedPayload = errors.New("malformed encrypted payload")
)

// SessionCodec seals serialized sessions with AES-256-GCM. Payloads carry a
// "v{n}:" prefix naming the key version so older sessions stay readable after
// rotation. The session date is bound as associated data.
type SessionCodec struct {
	mu       sync.RWMutex
	version  int
	current  cipher.AEAD
	previous map[int]cipher.AEAD
}

// NewSessionCodec builds a codec from the current key and any older versions.
func NewSessionCodec(current secrets.Key, previous ...secrets.Key) (*SessionCodec, error) {
	aead, err := newAEAD(current)
	if err != nil {
		return nil, fmt.Errorf("session codec: current key v%d: %w", current.Version, err)
	}

	c := &SessionCodec{
		version:  current.Version,
		current:  aead,
		previous: make(map[int]cipher.AEAD, len(previous)),
	}
	for _, k := range previous {
		if k.Version == current.Version {
			continue
		}
		old, err := newAEAD(k)
		if err != nil {
			return nil, fmt.Errorf("session codec: key v%d: %w", k.Version, err)
		}
		c.previous[k.Version] = old
	}
	return c, nil
}

// NewSessionCodecFromProvider fetches key material from kp.
func NewSessionCodecFromProvider(ctx context.Context, kp secrets.KeyProvider) (*SessionCodec, error) {
	current, previous, err := kp.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return NewSessionCodec(current, previous...)
}

// DeriveKey returns material unchanged when it is already 32 bytes and otherwise
// stretches it with HKDF-SHA256.
func DeriveKey(material []byte) ([]byte, error) {
	if len(material) == keySize {
		return material, nil
	}
	if len(material) == 0 {
		return nil, secrets.ErrKeyUnavailable
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newAEAD(k secrets.Key) (cipher.AEAD, error) {
	key, err := DeriveKey(k.Material)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Version is the key version used for new payloads.
func (c *SessionCodec) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Seal encrypts plaintext and returns "v{n}:" + base64(nonce || ciphertext).
func (c *SessionCodec) Seal(plaintext, aad []byte) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nonce := make([]byte, c.current.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("seal: generate nonce: %w", err)
	}
	sealed := c.current.Seal(nonce, nonce, plaintext, aad)
	return versionTag + strconv.Itoa(c.version) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal. Payloads without a version prefix
// are tried with the current key.
func (c *SessionCodec) Open(payload string, aad []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	aead := c.current
	body := payload
	if version, rest, ok := splitVersion(payload); ok {
		body = rest
		if version != c.version {
			old, found := c.previous[version]
			if !found {
				return nil, fmt.Errorf("%w: v%d", ErrUnknownKeyVersion, version)
			}
			aead = old
		}
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(data) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: too short", ErrMalformedPayload)
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

// NeedsRotation reports whether payload was sealed with an older or unknown key version.
func (c *SessionCodec) NeedsRotation(payload string) bool {
	version, _, ok := splitVersion(payload)
	return !ok || version != c.Version()
}

// Rotate re-seals payload with the current key.
func (c *SessionCodec) Rotate(payload string, aad []byte) (string, error) {
	plaintext, err := c.Open(payload, aad)
	if err != nil {
		return "", fmt.Errorf("rotate: %w", err)
	}
	return c.Seal(plaintext, aad)
}

func splitVersion(payload string) (int, string, bool) {
	if !strings.HasPrefix(payload, versionTag) {
		return 0, "", false
	}
	idx := strings.IndexByte(payload, ':')
	if idx < 0 {
		return 0, "", false
	}
	version, err := strconv.Atoi(payload[len(versionTag):idx])
	if err != nil {
		return 0, "", false
	}
	return version, payload[idx+1:], true
}
