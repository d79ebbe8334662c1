package jwt

import (
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// ErrVerification is matched by every verification failure
var ErrVerification = errors.New("token verification failed")

// Verification failure kinds
var (
	// ErrMalformed is returned when the token can not be parsed
	ErrMalformed = errors.New("malformed token")
	// ErrSignatureInvalid is returned when the signature or algorithm does not match the key
	ErrSignatureInvalid = errors.New("invalid signature")
	// ErrExpired is returned when the exp claim is in the past
	ErrExpired = errors.New("token expired")
	// ErrAudienceMismatch is returned when the aud claim does not contain the expected audience
	ErrAudienceMismatch = errors.New("invalid audience")
	// ErrIssuerMismatch is returned when the iss claim does not match the expected issuer
	ErrIssuerMismatch = errors.New("invalid issuer")
	// ErrNoUsableKey is returned when no verification key is configured
	ErrNoUsableKey = errors.New("no verification key configured")
)

// VerificationError describes a failed verification attempt
type VerificationError struct {
	// Kind is one of ErrMalformed, ErrSignatureInvalid, ErrExpired,
	// ErrAudienceMismatch, ErrIssuerMismatch or ErrNoUsableKey
	Kind  error
	Cause error
}

// NewVerificationError returns VerificationError of the kind
func NewVerificationError(kind, cause error) *VerificationError {
	return &VerificationError{Kind: kind, Cause: cause}
}

// Error implements error
func (e *VerificationError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

// Unwrap returns the cause
func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// Is matches the kind and ErrVerification
func (e *VerificationError) Is(target error) bool {
	return target == ErrVerification || target == e.Kind
}

// IsVerificationError returns true if err is a verification failure
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrVerification)
}

// classify maps parser errors to a verification kind
func classify(err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return NewVerificationError(ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return NewVerificationError(ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return NewVerificationError(ErrAudienceMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return NewVerificationError(ErrIssuerMismatch, err)
	default:
		return NewVerificationError(ErrSignatureInvalid, err)
	}
}
