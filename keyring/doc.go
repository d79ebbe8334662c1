// Package keyring resolves configured key material into index-addressed rings.
//
// A Source may hold a single value, an ordered list, an explicit index mapping,
// or a callback producing any of these. Resolving a Source always yields a
// Ring keyed by non-negative integer index, which is the form used for key
// rotation: tokens signed by an older key remain verifiable while new tokens
// are signed by another index.
//
// The same resolution rules apply to secret keys, public keys, algorithms and
// audiences.
package keyring
