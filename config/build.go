package config

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/authtoken"
	"github.com/effective-security/authtoken/jwt"
	"github.com/effective-security/authtoken/keyring"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	jose "github.com/go-jose/go-jose/v3"
	"golang.org/x/crypto/hkdf"
)

// seedInfo is HKDF info used to derive HMAC secrets from seeds
var seedInfo = []byte("authtoken hmac secret")

// DeriveSecret returns 32 bytes HMAC secret derived from the seed
func DeriveSecret(seed string) ([]byte, error) {
	if strings.TrimSpace(seed) == "" {
		return nil, errors.Errorf("empty seed")
	}
	secret := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(seed), nil, seedInfo), secret); err != nil {
		return nil, errors.WithStack(err)
	}
	return secret, nil
}

// keySet is the set of keys loaded from the configuration
type keySet struct {
	secrets    map[int]any
	publicKeys map[int]any
	algorithms map[int]string
}

func newKeySet() *keySet {
	return &keySet{
		secrets:    map[int]any{},
		publicKeys: map[int]any{},
		algorithms: map[int]string{},
	}
}

func (ks *keySet) clone() *keySet {
	cp := newKeySet()
	for i, k := range ks.secrets {
		cp.secrets[i] = k
	}
	for i, k := range ks.publicKeys {
		cp.publicKeys[i] = k
	}
	for i, a := range ks.algorithms {
		cp.algorithms[i] = a
	}
	return cp
}

// mergeJWKS adds the keys of JWKS ring at indices
// without an explicitly configured public key
func (ks *keySet) mergeJWKS(ring keyring.Ring[any]) error {
	for _, i := range ring.Indices() {
		if _, ok := ks.publicKeys[i]; ok {
			continue
		}
		key, _ := ring.Get(i)
		alg := ""
		if jwk, ok := key.(*jose.JSONWebKey); ok {
			alg = jwk.Algorithm
		}
		if alg == "" {
			var err error
			if alg, err = jwt.AlgorithmForKey(key); err != nil {
				return errors.WithMessagef(err, "JWKS key %d", i)
			}
		}
		ks.publicKeys[i] = key
		if _, ok := ks.algorithms[i]; !ok {
			ks.algorithms[i] = alg
		}
	}
	return nil
}

// keyLoader provides key sources of the configuration.
//
// The codec resolves secret keys first on every call: with Reload this
// reads the key files, and public keys and algorithms resolved later in the
// same call come from that snapshot. The remote JWKS is used for public keys
// and algorithms only, so signing does not depend on its availability.
type keyLoader struct {
	cfg    *Config
	ctx    context.Context
	remote *jwt.RemoteKeySet

	lock sync.Mutex
	// local keys of the last load
	local *keySet
	// local keys merged with the remote JWKS
	current *keySet
}

// load reads the local keys and makes them the current snapshot
func (l *keyLoader) load() (*keySet, error) {
	ks, err := l.cfg.localKeys(l.ctx)
	if err != nil {
		return nil, err
	}
	l.lock.Lock()
	l.local = ks
	l.current = ks
	l.lock.Unlock()
	return ks, nil
}

func (l *keyLoader) snapshot() (local, current *keySet, err error) {
	l.lock.Lock()
	local, current = l.local, l.current
	l.lock.Unlock()
	if local == nil {
		local, err = l.load()
		current = local
	}
	return
}

func (l *keyLoader) secretKeys() (keyring.Source[any], error) {
	ks, err := l.load()
	if err != nil {
		return keyring.None[any](), err
	}
	return keyring.Indexed(ks.secrets), nil
}

func (l *keyLoader) publicKeys() (keyring.Source[any], error) {
	local, _, err := l.snapshot()
	if err != nil {
		return keyring.None[any](), err
	}
	if l.remote == nil {
		return keyring.Indexed(local.publicKeys), nil
	}

	merged := local.clone()
	ring, err := l.remoteKeys()
	if err == nil {
		err = merged.mergeJWKS(ring)
	}
	if err != nil {
		if len(local.secrets) == 0 && len(local.publicKeys) == 0 {
			return keyring.None[any](), err
		}
		// local keys still verify tokens
		logger.KV(xlog.WARNING, "reason", "jwks", "url", l.cfg.JWKSURL, "err", err.Error())
		merged = local
	}

	l.lock.Lock()
	l.current = merged
	l.lock.Unlock()
	return keyring.Indexed(merged.publicKeys), nil
}

// remoteKeys returns the keys of the remote JWKS,
// with Reload the key set is fetched again
func (l *keyLoader) remoteKeys() (keyring.Ring[any], error) {
	if l.cfg.Reload {
		if _, err := l.remote.Refresh(l.ctx); err != nil {
			return keyring.Ring[any]{}, err
		}
	}
	return jwt.KeySetSource(l.ctx, l.remote).Resolve()
}

func (l *keyLoader) algorithms() (keyring.Source[string], error) {
	_, current, err := l.snapshot()
	if err != nil {
		return keyring.None[string](), err
	}
	return keyring.Indexed(current.algorithms), nil
}

// Build returns authtoken configuration.
// When Reload is set, key files are read on every use of the keys.
// Keys of a remote JWKS are fetched on first use, or on every use with Reload.
func (c *Config) Build(ctx context.Context) (*authtoken.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	audiences := map[int]string{}
	for _, k := range c.Keys {
		if k.Audience != "" {
			audiences[k.Index] = k.Audience
		}
	}

	cfg := &authtoken.Config{
		Lifetime: time.Duration(c.Lifetime),
		Leeway:   time.Duration(c.Leeway),
		Issuer:   c.Issuer,
		TokenID:  c.TokenID,
		IssuedAt: c.IssuedAt,
	}
	if len(audiences) > 0 {
		cfg.Audiences = keyring.Indexed(audiences)
	}

	l := &keyLoader{cfg: c, ctx: ctx}
	if c.JWKSURL != "" {
		l.remote = jwt.NewRemoteKeySet(ctx, c.JWKSURL)
	}

	// local keys are validated at start
	ks, err := l.load()
	if err != nil {
		return nil, err
	}

	if !c.Reload && l.remote == nil {
		cfg.SecretKeys = keyring.Indexed(ks.secrets)
		cfg.PublicKeys = keyring.Indexed(ks.publicKeys)
		cfg.Algorithms = keyring.Indexed(ks.algorithms)
		return cfg, nil
	}

	if c.Reload {
		cfg.SecretKeys = keyring.Lazy(l.secretKeys)
	} else {
		cfg.SecretKeys = keyring.Indexed(ks.secrets)
	}
	cfg.PublicKeys = keyring.Lazy(l.publicKeys)
	cfg.Algorithms = keyring.Lazy(l.algorithms)
	return cfg, nil
}

// NewCodec returns Codec for the configuration file
func NewCodec(ctx context.Context, file string, opts ...authtoken.Option) (*authtoken.Codec, error) {
	cfg, err := Load(file)
	if err != nil {
		return nil, err
	}
	atc, err := cfg.Build(ctx)
	if err != nil {
		return nil, err
	}
	return authtoken.New(atc, opts...)
}

func loadJWKS(file string) (*jwt.StaticKeySet, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to read JWKS")
	}
	keys, err := jwt.ParseJWKS(raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse JWKS: %s", file)
	}
	return &jwt.StaticKeySet{KeySet: keys}, nil
}

// localKeys returns the keys of the configuration files merged with the keys
// of the JWKS file: the key at position i of the set is the public key
// at index i, explicitly configured keys take precedence.
func (c *Config) localKeys(ctx context.Context) (*keySet, error) {
	ks := newKeySet()

	for _, k := range c.Keys {
		var signer any
		switch {
		case k.Seed != "":
			seed, err := configloader.ResolveValue(k.Seed)
			if err != nil {
				return nil, errors.WithMessagef(err, "unable to load seed for key %d", k.Index)
			}
			secret, err := DeriveSecret(strings.TrimSpace(seed))
			if err != nil {
				return nil, errors.WithMessagef(err, "key %d", k.Index)
			}
			signer = secret
		case k.PrivateKey != "":
			raw, err := os.ReadFile(c.resolvePath(k.PrivateKey))
			if err != nil {
				return nil, errors.WithMessagef(err, "unable to read private key %d", k.Index)
			}
			signer, err = jwt.ParsePrivateKeyFromPEM(raw)
			if err != nil {
				return nil, errors.WithMessagef(err, "key %d", k.Index)
			}
		}
		if signer != nil {
			ks.secrets[k.Index] = signer
		}

		var verifier any
		if k.PublicKey != "" {
			raw, err := os.ReadFile(c.resolvePath(k.PublicKey))
			if err != nil {
				return nil, errors.WithMessagef(err, "unable to read public key %d", k.Index)
			}
			verifier, err = jwt.ParsePublicKeyFromPEM(raw)
			if err != nil {
				return nil, errors.WithMessagef(err, "key %d", k.Index)
			}
			ks.publicKeys[k.Index] = verifier
		}

		alg := k.Algorithm
		if alg == "" {
			key := signer
			if key == nil {
				key = verifier
			}
			var err error
			alg, err = jwt.AlgorithmForKey(key)
			if err != nil {
				return nil, errors.WithMessagef(err, "key %d", k.Index)
			}
		}
		ks.algorithms[k.Index] = alg
	}

	if c.JWKS != "" {
		set, err := loadJWKS(c.resolvePath(c.JWKS))
		if err != nil {
			return nil, err
		}
		ring, err := jwt.KeySetSource(ctx, set).Resolve()
		if err != nil {
			return nil, err
		}
		if err = ks.mergeJWKS(ring); err != nil {
			return nil, err
		}
	}

	logger.KV(xlog.DEBUG,
		"secrets", len(ks.secrets),
		"public_keys", len(ks.publicKeys),
		"reload", c.Reload)
	return ks, nil
}
