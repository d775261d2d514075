package crypto

import (
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// SecretSize is the entropy of locally generated secrets.
const SecretSize = 32

// NewSecret draws SecretSize random bytes and returns them base58 encoded.
// Secrets generated here are only ever used as DeriveKey input.
func (c *Cipher) NewSecret() (string, error) {
	buf := make([]byte, SecretSize)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return base58.Encode(buf), nil
}
