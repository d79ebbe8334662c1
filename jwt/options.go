package jwt

import "time"

// VerifyOptions expresses the checks applied when verifying a token
type VerifyOptions struct {
	// Algorithm pins the only accepted signing algorithm
	Algorithm string
	// CheckExpiration enables the exp claim check
	CheckExpiration bool
	// CheckAudience enables the aud claim check against Audience
	CheckAudience bool
	// Audience lists accepted audience values, any match is accepted
	Audience []string
	// Issuer validates the iss claim if not empty
	Issuer string
	// Leeway allowed for the exp claim
	Leeway time.Duration
}

// VerifyOption overrides a field of VerifyOptions
type VerifyOption func(*VerifyOptions)

// Apply returns a copy of the options with overrides applied in order
func (o VerifyOptions) Apply(opts ...VerifyOption) *VerifyOptions {
	cp := o
	cp.Audience = append([]string(nil), o.Audience...)
	for _, opt := range opts {
		if opt != nil {
			opt(&cp)
		}
	}
	return &cp
}

// WithAlgorithm overrides the algorithm
func WithAlgorithm(alg string) VerifyOption {
	return func(o *VerifyOptions) {
		o.Algorithm = alg
	}
}

// WithExpirationCheck enables or disables the exp claim check
func WithExpirationCheck(check bool) VerifyOption {
	return func(o *VerifyOptions) {
		o.CheckExpiration = check
	}
}

// WithAudienceCheck enables or disables the aud claim check
func WithAudienceCheck(check bool) VerifyOption {
	return func(o *VerifyOptions) {
		o.CheckAudience = check
	}
}

// WithAudience sets accepted audiences and enables the aud claim check
func WithAudience(aud ...string) VerifyOption {
	return func(o *VerifyOptions) {
		o.Audience = aud
		o.CheckAudience = len(aud) > 0
	}
}

// WithIssuer sets the expected issuer
func WithIssuer(iss string) VerifyOption {
	return func(o *VerifyOptions) {
		o.Issuer = iss
	}
}

// WithLeeway sets the leeway for the exp claim
func WithLeeway(leeway time.Duration) VerifyOption {
	return func(o *VerifyOptions) {
		o.Leeway = leeway
	}
}
