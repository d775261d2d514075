package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	NonceSize = 24
)

var (
	ErrUnknownHash = errors.New("unknown key derivation hash")
	ErrRandom      = errors.New("random source failure")
)

// Key is the secretbox key derived from a device secret.
type Key [KeySize]byte

// HashAlgorithm selects the one-way function behind DeriveKey. It is fixed per
// deployment: changing it makes envelopes of already registered devices unreadable.
type HashAlgorithm string

const (
	HashSHA256     HashAlgorithm = "sha256"
	HashBLAKE2b256 HashAlgorithm = "blake2b-256"
)

func ParseHashAlgorithm(raw string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(strings.TrimSpace(raw))) {
	case "", HashSHA256:
		return HashSHA256, nil
	case HashBLAKE2b256:
		return HashBLAKE2b256, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownHash, raw)
	}
}

// Cipher derives keys and seals nonce ‖ ciphertext envelopes.
type Cipher struct {
	hash HashAlgorithm
	rand io.Reader
}

func New(hash HashAlgorithm) (*Cipher, error) {
	if _, err := ParseHashAlgorithm(string(hash)); err != nil {
		return nil, err
	}
	if hash == "" {
		hash = HashSHA256
	}
	return &Cipher{hash: hash, rand: rand.Reader}, nil
}

// Default returns a SHA-256 cipher.
func Default() *Cipher {
	return &Cipher{hash: HashSHA256, rand: rand.Reader}
}

func (c *Cipher) Hash() HashAlgorithm {
	return c.hash
}

// DeriveKey hashes the UTF-8 bytes of secret into a 32 byte key.
func (c *Cipher) DeriveKey(secret string) Key {
	switch c.hash {
	case HashBLAKE2b256:
		return Key(blake2b.Sum256([]byte(secret)))
	default:
		return Key(sha256.Sum256([]byte(secret)))
	}
}

// Encrypt seals plaintext under key with a fresh random nonce. The only failure
// is the random source; callers must abort the surrounding operation on error.
func (c *Cipher) Encrypt(plaintext []byte, key Key) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(c.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandom, err)
	}
	k := [KeySize]byte(key)
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, &k), nil
}

// Decrypt opens an envelope. ok is false for a short envelope or a failed tag check.
func (c *Cipher) Decrypt(envelope []byte, key Key) (plaintext []byte, ok bool) {
	if len(envelope) < NonceSize+secretbox.Overhead {
		return nil, false
	}
	var nonce [NonceSize]byte
	copy(nonce[:], envelope[:NonceSize])
	k := [KeySize]byte(key)
	plaintext, ok = secretbox.Open(nil, envelope[NonceSize:], &nonce, &k)
	if !ok {
		return nil, false
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, true
}

// SealString encrypts message under the key derived from secret and returns
// the envelope as standard base64, the form the hub stores and relays.
func (c *Cipher) SealString(message, secret string) (string, error) {
	env, err := c.Encrypt([]byte(message), c.DeriveKey(secret))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(env), nil
}

// OpenString reverses SealString. Bad base64 is treated like a failed tag.
func (c *Cipher) OpenString(encoded, secret string) (string, bool) {
	env, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", false
	}
	plain, ok := c.Decrypt(env, c.DeriveKey(secret))
	if !ok {
		return "", false
	}
	return string(plain), true
}
