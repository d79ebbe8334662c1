package authtoken

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/jwt"
)

// EntityResolver maps verified claims to an application entity
type EntityResolver[E any] interface {
	Resolve(ctx context.Context, claims jwt.Claims) (E, error)
}

// FromPayload is implemented by entity stores that build an entity
// from the full token payload
type FromPayload[E any] interface {
	FromTokenPayload(ctx context.Context, claims jwt.Claims) (E, error)
}

// FromIdentifier is implemented by entity stores that look up an entity
// by the sub claim
type FromIdentifier[E any] interface {
	FindByID(ctx context.Context, id string) (E, error)
}

// PayloadResolver returns EntityResolver calling FromTokenPayload
func PayloadResolver[E any](src FromPayload[E]) EntityResolver[E] {
	return payloadResolver[E]{src: src}
}

// IdentifierResolver returns EntityResolver calling FindByID with the sub claim
func IdentifierResolver[E any](src FromIdentifier[E]) EntityResolver[E] {
	return identifierResolver[E]{src: src}
}

// NewEntityResolver returns EntityResolver for the target:
// FromPayload is preferred, FromIdentifier is used otherwise.
func NewEntityResolver[E any](target any) (EntityResolver[E], error) {
	switch src := target.(type) {
	case EntityResolver[E]:
		return src, nil
	case FromPayload[E]:
		return PayloadResolver(src), nil
	case FromIdentifier[E]:
		return IdentifierResolver(src), nil
	}
	return nil, errors.Errorf("%T does not support entity lookup", target)
}

// EntityFor returns the entity of the token resolved by the target
func EntityFor[E any](ctx context.Context, t *AuthToken, target any) (E, error) {
	var zero E
	r, err := NewEntityResolver[E](target)
	if err != nil {
		return zero, err
	}
	return r.Resolve(ctx, t.Payload())
}

type payloadResolver[E any] struct {
	src FromPayload[E]
}

func (r payloadResolver[E]) Resolve(ctx context.Context, claims jwt.Claims) (E, error) {
	return r.src.FromTokenPayload(ctx, claims)
}

type identifierResolver[E any] struct {
	src FromIdentifier[E]
}

func (r identifierResolver[E]) Resolve(ctx context.Context, claims jwt.Claims) (E, error) {
	sub := claims.Subject()
	if sub == "" {
		var zero E
		return zero, errors.Errorf("sub claim not found")
	}
	return r.src.FindByID(ctx, sub)
}
