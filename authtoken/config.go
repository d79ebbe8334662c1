package authtoken

import (
	"time"

	"github.com/effective-security/authtoken/keyring"
)

// Config is the configuration snapshot of a Codec.
// It is treated as read-only after the Codec is created.
type Config struct {
	// SecretKeys are used to sign tokens, and to verify them
	// when no public key is configured at the same index
	SecretKeys keyring.Source[any]
	// PublicKeys are used to verify tokens
	PublicKeys keyring.Source[any]
	// Algorithms specifies the signing algorithm per key index
	Algorithms keyring.Source[string]
	// Audiences specifies the audience per key index.
	// When configured, aud claim is issued and verified.
	Audiences keyring.Source[string]
	// Lifetime of issued tokens. When not zero, exp claim is issued and verified.
	Lifetime time.Duration
	// Leeway allowed when verifying exp claim
	Leeway time.Duration
	// Issuer when not empty is issued as iss claim and verified
	Issuer string
	// TokenID specifies to issue a unique jti claim
	TokenID bool
	// IssuedAt specifies to issue iat claim
	IssuedAt bool
}
