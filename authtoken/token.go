package authtoken

import (
	"encoding/json"

	"github.com/effective-security/authtoken/jwt"
)

// AuthToken is an issued or verified token with its claims
type AuthToken struct {
	token   string
	payload jwt.Claims
}

// Token returns the compact JWT
func (t *AuthToken) Token() string {
	return t.token
}

// Payload returns a copy of the claims
func (t *AuthToken) Payload() jwt.Claims {
	return t.payload.Clone()
}

// Subject returns the sub claim
func (t *AuthToken) Subject() string {
	return t.payload.Subject()
}

// MarshalJSON returns {"jwt": "<token>"}
func (t *AuthToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		JWT string `json:"jwt"`
	}{JWT: t.token})
}
