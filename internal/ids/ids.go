// Package ids generates random identifiers for uploaded objects and publish
// idempotency keys.
package ids

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// idBytes is the amount of randomness in every identifier (128 bits).
const idBytes = 16

// New returns a 32-character hex string backed by 128 bits from crypto/rand.
func New() string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("Failed to read random bytes for identifier")
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns New() prefixed by prefix, e.g. "idem-".
func WithPrefix(prefix string) string {
	return prefix + New()
}
