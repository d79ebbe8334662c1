package cli

import (
	"crypto"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/jwt"
	jose "github.com/go-jose/go-jose/v3"
)

// KeysCmd is the parent for key commands
type KeysCmd struct {
	List     KeysListCmd     `cmd:"" help:"list configured key indices"`
	Generate KeysGenerateCmd `cmd:"" help:"generate key"`
	JWKS     KeysJWKSCmd     `cmd:"" name:"jwks" help:"print public keys as JSON Web Key Set"`
}

// KeysListCmd prints configured key indices
type KeysListCmd struct{}

// Run the command
func (a *KeysListCmd) Run(ctx *Cli) error {
	codec, err := ctx.Codec()
	if err != nil {
		return err
	}
	entries, err := codec.Entries()
	if err != nil {
		return err
	}

	out := ctx.Writer()
	for _, e := range entries {
		fmt.Fprintf(out, "index: %d\n", e.Index)
		fmt.Fprintf(out, "  algorithm:  %s\n", e.Algorithm)
		if e.Audience != "" {
			fmt.Fprintf(out, "  audience:   %s\n", e.Audience)
		}
		if e.SecretKey != nil {
			fmt.Fprintf(out, "  secret_key: %s\n", jwt.KeyType(e.SecretKey))
		}
		if e.PublicKey != nil {
			fmt.Fprintf(out, "  public_key: %s\n", jwt.KeyType(e.PublicKey))
		}
	}
	return nil
}

// KeysGenerateCmd generates a key
type KeysGenerateCmd struct {
	Alg    string `help:"signing algorithm" default:"ES256"`
	Output string `short:"o" help:"output file prefix, the key is printed if not specified"`
}

// Run the command
func (a *KeysGenerateCmd) Run(ctx *Cli) error {
	key, err := jwt.GenerateKey(a.Alg)
	if err != nil {
		return err
	}

	if secret, ok := key.([]byte); ok {
		seed := hex.EncodeToString(secret)
		if a.Output == "" {
			fmt.Fprintln(ctx.Writer(), seed)
			return nil
		}
		return writeFile(a.Output+".seed", []byte(seed), ctx)
	}

	signer := key.(crypto.Signer)
	pvk, err := jwt.EncodePrivateKeyToPEM(signer)
	if err != nil {
		return err
	}
	pub, err := jwt.EncodePublicKeyToPEM(signer.Public())
	if err != nil {
		return err
	}

	if a.Output == "" {
		fmt.Fprint(ctx.Writer(), string(pvk))
		fmt.Fprint(ctx.Writer(), string(pub))
		return nil
	}
	if err = writeFile(a.Output+".key", pvk, ctx); err != nil {
		return err
	}
	return writeFile(a.Output+".pub", pub, ctx)
}

func writeFile(file string, data []byte, ctx *Cli) error {
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return errors.WithMessagef(err, "unable to write %s", file)
	}
	fmt.Fprintf(ctx.Writer(), "%s\n", file)
	return nil
}

// KeysJWKSCmd prints public keys of the configuration.
// Keys are printed in ascending index order, HMAC keys are skipped.
type KeysJWKSCmd struct{}

// Run the command
func (a *KeysJWKSCmd) Run(ctx *Cli) error {
	codec, err := ctx.Codec()
	if err != nil {
		return err
	}
	entries, err := codec.Entries()
	if err != nil {
		return err
	}

	set := jose.JSONWebKeySet{}
	for _, e := range entries {
		pub := publicKey(e.PublicKey)
		if pub == nil {
			pub = publicKey(e.SecretKey)
		}
		if pub == nil {
			continue
		}
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       pub,
			KeyID:     strconv.Itoa(e.Index),
			Algorithm: e.Algorithm,
			Use:       "sig",
		})
	}

	return ctx.WriteJSON(set)
}

func publicKey(key any) any {
	switch k := key.(type) {
	case *jose.JSONWebKey:
		return k.Public().Key
	case crypto.Signer:
		return k.Public()
	case []byte, string, nil:
		return nil
	}
	return key
}
