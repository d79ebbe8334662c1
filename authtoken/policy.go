package authtoken

import (
	"time"

	"github.com/effective-security/authtoken/jwt"
	"github.com/google/uuid"
)

// Key classes reported in keyring.InvalidKeyIndexError
const (
	ClassSecretKey = "secret_key"
	ClassPublicKey = "public_key"
	ClassAlgorithm = "algorithm"
	ClassAudience  = "audience"
)

// Policy computes the default claims issued with a token,
// and the verification options per key index
type Policy struct {
	cfg *Config
	now func() time.Time
}

// NewPolicy returns Policy for the configuration
func NewPolicy(cfg *Config, now func() time.Time) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{cfg: cfg, now: now}
}

// CheckExpiration returns true if token lifetime is configured
func (p *Policy) CheckExpiration() bool {
	return p.cfg.Lifetime > 0
}

// CheckAudience returns true if audience is configured
func (p *Policy) CheckAudience() (bool, error) {
	r, err := p.cfg.Audiences.Resolve()
	if err != nil {
		return false, err
	}
	return r.Len() > 0, nil
}

// Algorithm returns the signing algorithm for the key index
func (p *Policy) Algorithm(index int) (string, error) {
	r, err := p.cfg.Algorithms.Resolve()
	if err != nil {
		return "", err
	}
	return r.Lookup(ClassAlgorithm, index)
}

// Audience returns the audience for the key index
func (p *Policy) Audience(index int) (string, error) {
	r, err := p.cfg.Audiences.Resolve()
	if err != nil {
		return "", err
	}
	return r.Lookup(ClassAudience, index)
}

// DefaultClaims returns the claims issued with every token:
// exp when lifetime is configured, and aud of the key index 0
// when audience is configured.
func (p *Policy) DefaultClaims() (jwt.Claims, error) {
	claims := jwt.Claims{}
	now := p.now()

	if p.CheckExpiration() {
		claims["exp"] = now.Add(p.cfg.Lifetime).Unix()
	}

	checkAud, err := p.CheckAudience()
	if err != nil {
		return nil, err
	}
	if checkAud {
		aud, err := p.Audience(0)
		if err != nil {
			return nil, err
		}
		claims["aud"] = aud
	}

	if p.cfg.Issuer != "" {
		claims["iss"] = p.cfg.Issuer
	}
	if p.cfg.IssuedAt {
		claims["iat"] = now.Unix()
	}
	if p.cfg.TokenID {
		claims["jti"] = uuid.NewString()
	}
	return claims, nil
}

// VerifyOptions returns the verification options for the key index
func (p *Policy) VerifyOptions(index int) (*jwt.VerifyOptions, error) {
	alg, err := p.Algorithm(index)
	if err != nil {
		return nil, err
	}

	opts := &jwt.VerifyOptions{
		Algorithm:       alg,
		CheckExpiration: p.CheckExpiration(),
		Issuer:          p.cfg.Issuer,
		Leeway:          p.cfg.Leeway,
	}

	opts.CheckAudience, err = p.CheckAudience()
	if err != nil {
		return nil, err
	}
	if opts.CheckAudience {
		aud, err := p.Audience(index)
		if err != nil {
			return nil, err
		}
		opts.Audience = []string{aud}
	}
	return opts, nil
}
