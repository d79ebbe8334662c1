package jwt

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/golang-jwt/jwt/v5"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/authtoken", "jwt")

// TimeNowFn to override in unit tests
var TimeNowFn = time.Now

// Primitive signs claims and verifies tokens with a single key
type Primitive interface {
	// Sign returns compact JWT of the claims signed with the key and algorithm
	Sign(claims Claims, key any, algorithm string) (string, error)
	// Verify returns claims of the token if the signature matches the key
	// and the checks in opts pass, or VerificationError otherwise
	Verify(token string, key any, opts *VerifyOptions) (Claims, error)
}

// PrimitiveOption configures the default primitive
type PrimitiveOption func(*primitive)

// WithClock sets the time source for claim checks
func WithClock(now func() time.Time) PrimitiveOption {
	return func(p *primitive) {
		p.now = now
	}
}

// WithHeaders adds headers to signed tokens
func WithHeaders(headers map[string]any) PrimitiveOption {
	return func(p *primitive) {
		p.headers = headers
	}
}

type primitive struct {
	now     func() time.Time
	headers map[string]any
}

// NewPrimitive returns Primitive supporting HMAC, RSA, RSA-PSS, ECDSA and EdDSA
func NewPrimitive(opts ...PrimitiveOption) Primitive {
	p := &primitive{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *primitive) timeNow() time.Time {
	if p.now != nil {
		return p.now()
	}
	return TimeNowFn()
}

func signingMethod(algorithm string) (jwt.SigningMethod, error) {
	if algorithm == "" || algorithm == "none" {
		return nil, errors.Errorf("unsupported algorithm: %q", algorithm)
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, errors.Errorf("unsupported algorithm: %q", algorithm)
	}
	return method, nil
}

// Sign implements Primitive
func (p *primitive) Sign(claims Claims, key any, algorithm string) (string, error) {
	method, err := signingMethod(algorithm)
	if err != nil {
		return "", err
	}
	signKey, err := signingKey(method, key)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	for k, v := range p.headers {
		token.Header[k] = v
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", errors.WithMessagef(err, "failed to sign token")
	}
	return signed, nil
}

// Verify implements Primitive
func (p *primitive) Verify(token string, key any, opts *VerifyOptions) (Claims, error) {
	if opts == nil {
		opts = &VerifyOptions{}
	}
	method, err := signingMethod(opts.Algorithm)
	if err != nil {
		return nil, NewVerificationError(ErrSignatureInvalid, err)
	}
	vkey, err := verifyKey(method, key)
	if err != nil {
		return nil, NewVerificationError(ErrSignatureInvalid, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		// exp and aud are optional here, they are checked below
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		logger.KV(xlog.TRACE, "alg", t.Header["alg"], "kid", t.Header["kid"])
		return vkey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	c := Claims(claims)
	if opts.CheckExpiration {
		if err = c.VerifyExpiresAt(p.timeNow(), opts.Leeway); err != nil {
			return nil, NewVerificationError(ErrExpired, err)
		}
	}
	if opts.CheckAudience {
		if err = c.VerifyAudience(opts.Audience); err != nil {
			return nil, NewVerificationError(ErrAudienceMismatch, err)
		}
	}
	if opts.Issuer != "" {
		if err = c.VerifyIssuer(opts.Issuer); err != nil {
			return nil, NewVerificationError(ErrIssuerMismatch, err)
		}
	}
	return c, nil
}
