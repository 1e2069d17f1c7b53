package token

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// NewBridgeSigner returns the HMAC signer for the configured secret. An empty
// secret never reaches the signer: signing with an empty key would let anyone
// mint valid tokens. A random 256-bit secret is generated instead, which
// invalidates outstanding access tokens on restart, so the generation is
// logged loudly.
func NewBridgeSigner(secret string, logger zerolog.Logger) (Signer, error) {
	if secret != "" {
		return NewHMACSigner(secret), nil
	}

	generated := make([]byte, 32) // 256 bits
	if _, err := rand.Read(generated); err != nil {
		return nil, errors.Wrap(err, "[NewBridgeSigner] failed to generate HMAC secret")
	}
	logger.Warn().Msg("no signing secret configured, generated an ephemeral one; issued tokens will not survive a restart")
	return NewHMACSigner(hex.EncodeToString(generated)), nil
}
