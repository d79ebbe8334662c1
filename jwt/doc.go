// Package jwt provides the signing primitive used to issue and verify
// JSON Web Tokens (RFC 7519).
//
// The package implements:
//   - Primitive: sign claims with a key and algorithm, verify a token with a key
//     and VerifyOptions (algorithm pin, exp, aud and iss checks)
//   - Claims: generic claims map with typed accessors
//   - VerificationError kinds for malformed, signature, expiration, audience
//     and issuer failures
//   - key helpers for PEM encoding, key generation and algorithm selection
//   - JWKS key sets usable as key sources
//
// HMAC (HS256/384/512), RSA (RS256/384/512), RSA-PSS (PS256/384/512),
// ECDSA (ES256/384/512) and EdDSA algorithms are supported.
package jwt
