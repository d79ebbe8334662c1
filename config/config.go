// Package config loads authtoken configuration from JSON or YAML files.
package config

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/authtoken", "config")

// Duration is time.Duration that can be expressed as "1h30m" in JSON and YAML
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Errorf("invalid duration: %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON returns the duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML accepts a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

// MarshalYAML returns the duration string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Errorf("invalid duration: %q", s)
	}
	*d = Duration(v)
	return nil
}

// Key configuration of a key index
type Key struct {
	// Index of the key, tokens are verified with keys in ascending index order
	Index int `json:"index" yaml:"index"`
	// Algorithm of the key, when empty it is derived from the key type
	Algorithm string `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	// Audience issued and verified for the key index
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty"`
	// Seed to derive HMAC secret from,
	// can be specified as file:// or env://
	Seed string `json:"seed,omitempty" yaml:"seed,omitempty"`
	// PrivateKey specifies PEM file of the signing key
	PrivateKey string `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	// PublicKey specifies PEM file of the verification key
	PublicKey string `json:"public_key,omitempty" yaml:"public_key,omitempty"`
}

// Config provides token configuration
type Config struct {
	// Lifetime of issued tokens, exp claim is not issued or verified if not set
	Lifetime Duration `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	// Leeway allowed when verifying exp claim
	Leeway Duration `json:"leeway,omitempty" yaml:"leeway,omitempty"`
	// Issuer specifies issuer claim
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	// TokenID specifies to issue jti claim
	TokenID bool `json:"token_id,omitempty" yaml:"token_id,omitempty"`
	// IssuedAt specifies to issue iat claim
	IssuedAt bool `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	// Reload specifies to read key files on every use, to pick up rotated keys
	Reload bool `json:"reload,omitempty" yaml:"reload,omitempty"`
	// Keys specifies the list of key indices
	Keys []*Key `json:"keys,omitempty" yaml:"keys,omitempty"`
	// JWKS specifies a file with JSON Web Key Set of public keys,
	// the key at position i is the public key at index i
	JWKS string `json:"jwks,omitempty" yaml:"jwks,omitempty"`
	// JWKSURL specifies URL of JSON Web Key Set of public keys
	JWKSURL string `json:"jwks_url,omitempty" yaml:"jwks_url,omitempty"`

	// baseDir is the folder of the configuration file,
	// used to resolve relative key file paths
	baseDir string
}

// Load returns configuration loaded from a JSON or YAML file
func Load(file string) (*Config, error) {
	var cfg Config
	if err := configloader.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Keys) == 0 && cfg.JWKS == "" && cfg.JWKSURL == "" {
		return nil, errors.Errorf("missing keys: %q", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid configuration: %q", file)
	}

	cfg.baseDir = filepath.Dir(file)
	logger.KV(xlog.DEBUG, "file", file, "keys", len(cfg.Keys), "reload", cfg.Reload)
	return &cfg, nil
}

// Validate returns error if the configuration is not consistent
func (c *Config) Validate() error {
	if c.Lifetime < 0 {
		return errors.Errorf("negative lifetime")
	}
	if c.Leeway < 0 {
		return errors.Errorf("negative leeway")
	}

	seen := map[int]bool{}
	for _, k := range c.Keys {
		if k == nil {
			return errors.Errorf("empty key")
		}
		if k.Index < 0 {
			return errors.Errorf("invalid key index: %d", k.Index)
		}
		if seen[k.Index] {
			return errors.Errorf("duplicate key index: %d", k.Index)
		}
		seen[k.Index] = true

		if k.Seed == "" && k.PrivateKey == "" && k.PublicKey == "" {
			return errors.Errorf("key %d: seed, private_key or public_key must be specified", k.Index)
		}
		if k.Seed != "" && k.PrivateKey != "" {
			return errors.Errorf("key %d: seed and private_key are mutually exclusive", k.Index)
		}
	}
	return nil
}

// resolvePath returns path relative to the configuration folder
func (c *Config) resolvePath(file string) string {
	if file == "" || filepath.IsAbs(file) || c.baseDir == "" {
		return file
	}
	return filepath.Join(c.baseDir, file)
}
