package cli

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/jwt"
)

// TokenCmd is the parent for token commands
type TokenCmd struct {
	Encode TokenEncodeCmd `cmd:"" help:"issue a token"`
	Decode TokenDecodeCmd `cmd:"" help:"verify a token and print its claims"`
}

// TokenEncodeCmd issues a token
type TokenEncodeCmd struct {
	Index  int               `short:"i" help:"key index to sign with" default:"0"`
	Sub    string            `help:"subject claim"`
	Claims string            `help:"JSON object with claims, or @file to read claims from a file"`
	Claim  map[string]string `short:"c" help:"additional string claims"`
}

// Run the command
func (a *TokenEncodeCmd) Run(ctx *Cli) error {
	codec, err := ctx.Codec()
	if err != nil {
		return err
	}

	payload := jwt.Claims{}
	if a.Claims != "" {
		raw := []byte(a.Claims)
		if strings.HasPrefix(a.Claims, "@") {
			raw, err = ctx.ReadFile(strings.TrimPrefix(a.Claims, "@"))
			if err != nil {
				return errors.WithMessage(err, "unable to read claims")
			}
		}
		if err = json.Unmarshal(raw, &payload); err != nil {
			return errors.WithMessage(err, "invalid claims")
		}
	}
	for k, v := range a.Claim {
		payload[k] = v
	}
	if a.Sub != "" {
		payload["sub"] = a.Sub
	}

	at, err := codec.Encode(payload, a.Index)
	if err != nil {
		return err
	}
	return ctx.WriteJSON(at)
}

// TokenDecodeCmd verifies a token
type TokenDecodeCmd struct {
	Token    string        `arg:"" help:"token to verify, or - to read from stdin"`
	NoExp    bool          `help:"do not verify exp claim"`
	Audience []string      `name:"aud" help:"override expected audience"`
	Issuer   string        `name:"iss" help:"override expected issuer"`
	Leeway   time.Duration `help:"override leeway for exp claim"`
}

// Run the command
func (a *TokenDecodeCmd) Run(ctx *Cli) error {
	codec, err := ctx.Codec()
	if err != nil {
		return err
	}

	token := a.Token
	if token == "-" {
		raw, err := ctx.ReadFile("-")
		if err != nil {
			return errors.WithMessage(err, "unable to read token")
		}
		token = strings.TrimSpace(string(raw))
	}

	var opts []jwt.VerifyOption
	if a.NoExp {
		opts = append(opts, jwt.WithExpirationCheck(false))
	}
	if len(a.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(a.Audience...))
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(a.Leeway))
	}

	at, err := codec.Decode(token, opts...)
	if err != nil {
		return err
	}
	return ctx.WriteJSON(map[string]any(at.Payload()))
}
