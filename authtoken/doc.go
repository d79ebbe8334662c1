// Package authtoken issues and verifies JSON Web Tokens with rotating keys.
//
// A Codec is constructed once from an immutable Config snapshot. Every key
// class of the Config (secret keys, public keys, algorithms and audiences) is
// a keyring.Source, so a deployment can configure a single key, a list, an
// explicit index mapping, or a callback returning fresh key material.
//
// Encode signs the payload with the key at the requested index. Decode tries
// every configured key in ascending index order and returns the claims of the
// first successful verification. When no key verifies the token, the error of
// the last attempt is returned: with rotation the newest key usually has the
// highest index, so the reported failure corresponds to it.
//
// For decoding, public keys override secret keys configured at the same index.
package authtoken
