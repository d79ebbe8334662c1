package authtoken

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/jwt"
	"github.com/effective-security/authtoken/keyring"
	"github.com/effective-security/authtoken/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/authtoken", "authtoken")

// Option configures Codec
type Option func(*options)

type options struct {
	primitive jwt.Primitive
	now       func() time.Time
}

// WithPrimitive sets the signing primitive,
// by default jwt.NewPrimitive is used
func WithPrimitive(p jwt.Primitive) Option {
	return func(o *options) {
		o.primitive = p
	}
}

// WithClock sets the time source for issued and verified claims
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Codec issues and verifies tokens
type Codec struct {
	cfg       *Config
	policy    *Policy
	primitive jwt.Primitive
}

// New returns Codec for the configuration snapshot
func New(cfg *Config, opts ...Option) (*Codec, error) {
	if cfg == nil {
		return nil, errors.Errorf("configuration not provided")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = jwt.TimeNowFn
	}
	if o.primitive == nil {
		o.primitive = jwt.NewPrimitive(jwt.WithClock(o.now))
	}

	return &Codec{
		cfg:       cfg,
		policy:    NewPolicy(cfg, o.now),
		primitive: o.primitive,
	}, nil
}

// MustNew returns Codec or panics
func MustNew(cfg *Config, opts ...Option) *Codec {
	c, err := New(cfg, opts...)
	if err != nil {
		logger.Panicf("unable to create codec: %+v", err)
	}
	return c
}

// Policy returns the claims policy of the codec
func (c *Codec) Policy() *Policy {
	return c.policy
}

// Encode returns AuthToken with the payload signed by the key at keyIndex.
// The default claims of the policy are added to the payload,
// the payload values take precedence.
func (c *Codec) Encode(payload jwt.Claims, keyIndex int) (*AuthToken, error) {
	defer metricskey.PerfToken.MeasureSince(time.Now(), "encode")

	claims, err := c.policy.DefaultClaims()
	if err != nil {
		return nil, err
	}
	if err = claims.Add(payload); err != nil {
		return nil, err
	}

	secrets, err := c.cfg.SecretKeys.Resolve()
	if err != nil {
		return nil, err
	}
	key, err := secrets.Lookup(ClassSecretKey, keyIndex)
	if err != nil {
		return nil, err
	}
	alg, err := c.policy.Algorithm(keyIndex)
	if err != nil {
		return nil, err
	}

	token, err := c.primitive.Sign(claims, key, alg)
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG, "status", "encoded", "index", keyIndex, "alg", alg)
	return &AuthToken{token: token, payload: claims}, nil
}

// Decode returns AuthToken with the claims of the verified token.
//
// Keys are tried in ascending index order, public keys taking precedence over
// secret keys at the same index. Verification options of each index are
// combined with overrides, the overrides win. If no key verifies the token,
// the error of the last attempt is returned.
func (c *Codec) Decode(token string, overrides ...jwt.VerifyOption) (*AuthToken, error) {
	defer metricskey.PerfToken.MeasureSince(time.Now(), "decode")

	keys, err := c.decodeKeys()
	if err != nil {
		return nil, err
	}

	var lastErr error = jwt.NewVerificationError(jwt.ErrNoUsableKey, nil)
	for _, index := range keys.Indices() {
		key, _ := keys.Get(index)

		opts, err := c.policy.VerifyOptions(index)
		if err != nil {
			return nil, err
		}
		opts = opts.Apply(overrides...)

		started := time.Now()
		claims, err := c.primitive.Verify(token, key, opts)
		if err == nil {
			metricskey.PerfTokenVerify.MeasureSince(started, opts.Algorithm, "ok")
			logger.KV(xlog.DEBUG, "status", "decoded", "index", index, "alg", opts.Algorithm)
			return &AuthToken{token: token, payload: claims}, nil
		}

		metricskey.PerfTokenVerify.MeasureSince(started, opts.Algorithm, "failed")
		logger.KV(xlog.DEBUG, "reason", "verify", "index", index, "alg", opts.Algorithm, "err", err.Error())
		lastErr = err
	}
	return nil, lastErr
}

// decodeKeys returns secret keys merged with public keys
func (c *Codec) decodeKeys() (keyring.Ring[any], error) {
	secrets, err := c.cfg.SecretKeys.Resolve()
	if err != nil {
		return keyring.Ring[any]{}, err
	}
	publics, err := c.cfg.PublicKeys.Resolve()
	if err != nil {
		return keyring.Ring[any]{}, err
	}
	return secrets.Merge(publics), nil
}

// Entry describes configured key index
type Entry struct {
	Index     int    `json:"index"`
	SecretKey any    `json:"-"`
	PublicKey any    `json:"-"`
	Algorithm string `json:"algorithm,omitempty"`
	Audience  string `json:"audience,omitempty"`
}

// Entries returns configured key indices in ascending order.
// Algorithm and Audience are empty when not configured for the index.
func (c *Codec) Entries() ([]Entry, error) {
	secrets, err := c.cfg.SecretKeys.Resolve()
	if err != nil {
		return nil, err
	}
	publics, err := c.cfg.PublicKeys.Resolve()
	if err != nil {
		return nil, err
	}
	algs, err := c.cfg.Algorithms.Resolve()
	if err != nil {
		return nil, err
	}
	auds, err := c.cfg.Audiences.Resolve()
	if err != nil {
		return nil, err
	}

	all := secrets.Merge(publics)
	list := make([]Entry, 0, all.Len())
	for _, index := range all.Indices() {
		e := Entry{Index: index}
		e.SecretKey, _ = secrets.Get(index)
		e.PublicKey, _ = publics.Get(index)
		e.Algorithm, _ = algs.Get(index)
		e.Audience, _ = auds.Get(index)
		list = append(list, e)
	}
	return list, nil
}
