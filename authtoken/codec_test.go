package authtoken_test

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/authtoken/authtoken"
	"github.com/effective-security/authtoken/jwt"
	"github.com/effective-security/authtoken/keyring"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	xlog.SetGlobalLogLevel(xlog.DEBUG)
	retCode := m.Run()
	os.Exit(retCode)
}

// countingPrimitive records calls to the underlying primitive
type countingPrimitive struct {
	jwt.Primitive
	signed   int
	verified []any
}

func (p *countingPrimitive) Sign(claims jwt.Claims, key any, alg string) (string, error) {
	p.signed++
	return p.Primitive.Sign(claims, key, alg)
}

func (p *countingPrimitive) Verify(token string, key any, opts *jwt.VerifyOptions) (jwt.Claims, error) {
	p.verified = append(p.verified, key)
	return p.Primitive.Verify(token, key, opts)
}

func newCounting(now func() time.Time) *countingPrimitive {
	return &countingPrimitive{Primitive: jwt.NewPrimitive(jwt.WithClock(now))}
}

func TestRoundTrip(t *testing.T) {
	cfg := &authtoken.Config{
		SecretKeys: keyring.List[any]("secret0", []byte("secret1")),
		Algorithms: keyring.List("HS256", "HS512"),
	}
	c, err := authtoken.New(cfg)
	require.NoError(t, err)

	payload := jwt.Claims{"sub": "1", "name": "denis", "admin": true}
	for _, index := range []int{0, 1} {
		at, err := c.Encode(payload, index)
		require.NoError(t, err)
		assert.Equal(t, payload, at.Payload(), "no default claims configured")

		dt, err := c.Decode(at.Token())
		require.NoError(t, err)
		assert.Equal(t, at.Token(), dt.Token())
		assert.Equal(t, "1", dt.Subject())
		assert.Equal(t, "denis", dt.Payload()["name"])
		assert.Equal(t, true, dt.Payload()["admin"])
	}
}

func TestRoundTrip_DefaultClaims(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cfg := &authtoken.Config{
		SecretKeys: keyring.Single[any]("secret"),
		Algorithms: keyring.Single("HS256"),
		Audiences:  keyring.Single("app1"),
		Lifetime:   time.Hour,
		Issuer:     "authtoken",
		TokenID:    true,
		IssuedAt:   true,
	}
	c, err := authtoken.New(cfg, authtoken.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	at, err := c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)

	p := at.Payload()
	assert.Equal(t, now.Add(time.Hour).Unix(), p["exp"])
	assert.Equal(t, now.Unix(), p["iat"])
	assert.Equal(t, "app1", p["aud"])
	assert.Equal(t, "authtoken", p["iss"])
	assert.Len(t, p.String("jti"), 36)

	dt, err := c.Decode(at.Token())
	require.NoError(t, err)
	dp := dt.Payload()
	require.NotNil(t, dp.Time("exp"))
	assert.Equal(t, now.Add(time.Hour).Unix(), dp.Time("exp").Unix())
	assert.Equal(t, []string{"app1"}, dp.Audience())
	assert.Equal(t, p["jti"], dp["jti"])

	// payload wins over defaults
	at, err = c.Encode(jwt.Claims{"sub": "2", "aud": "custom", "iss": "me"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "custom", at.Payload()["aud"])
	assert.Equal(t, "me", at.Payload()["iss"])

	_, err = c.Decode(at.Token())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrAudienceMismatch))

	_, err = c.Decode(at.Token(), jwt.WithAudience("custom"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrIssuerMismatch))

	dt, err = c.Decode(at.Token(), jwt.WithAudience("custom"), jwt.WithIssuer("me"))
	require.NoError(t, err)
	assert.Equal(t, "2", dt.Subject())
}

func TestKeyRotation(t *testing.T) {
	now := time.Now
	p := newCounting(now)
	cfg := &authtoken.Config{
		SecretKeys: keyring.List[any]("K0", "K1"),
		Algorithms: keyring.List("HS256", "HS256"),
	}
	c, err := authtoken.New(cfg, authtoken.WithPrimitive(p))
	require.NoError(t, err)

	at, err := c.Encode(jwt.Claims{"sub": "rotated"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.signed)

	dt, err := c.Decode(at.Token())
	require.NoError(t, err)
	assert.Equal(t, "rotated", dt.Subject())
	assert.Equal(t, []any{"K0", "K1"}, p.verified, "index 0 is tried first")

	// token of the old key stops at index 0
	p.verified = nil
	at, err = c.Encode(jwt.Claims{"sub": "old"}, 0)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.NoError(t, err)
	assert.Equal(t, []any{"K0"}, p.verified)
}

func TestDecode_LastErrorWins(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	cfg := &authtoken.Config{
		SecretKeys: keyring.Indexed(map[int]any{0: "K0", 3: "K3"}),
		Algorithms: keyring.Indexed(map[int]string{0: "HS256", 3: "HS256"}),
		Audiences:  keyring.Indexed(map[int]string{0: "app0", 3: "app3"}),
		Lifetime:   time.Second,
	}
	c, err := authtoken.New(cfg, authtoken.WithClock(clock))
	require.NoError(t, err)

	// signed by K0, but audience of K3: index 0 succeeds
	at, err := c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.NoError(t, err)

	// signed by K3 with audience of index 0:
	// index 0 fails with signature, index 3 fails with audience
	at, err = c.Encode(jwt.Claims{"sub": "1"}, 3)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrAudienceMismatch))
	assert.False(t, errors.Is(err, jwt.ErrSignatureInvalid))

	// signed by K0 but expired: index 0 fails with expired, index 3 with signature
	at, err = c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, err = c.Decode(at.Token())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrSignatureInvalid))
	assert.True(t, jwt.IsVerificationError(err))
}

func TestExpiration(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cfg := &authtoken.Config{
		SecretKeys: keyring.Single[any]("secret"),
		Algorithms: keyring.Single("HS256"),
		Lifetime:   time.Second,
	}
	c, err := authtoken.New(cfg, authtoken.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	at, err := c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)

	_, err = c.Decode(at.Token())
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Decode(at.Token())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrExpired))

	_, err = c.Decode(at.Token(), jwt.WithExpirationCheck(false))
	require.NoError(t, err)
}

func TestExpiration_NotConfigured(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cfg := &authtoken.Config{
		SecretKeys: keyring.Single[any]("secret"),
		Algorithms: keyring.Single("HS256"),
	}
	c, err := authtoken.New(cfg, authtoken.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	at, err := c.Encode(jwt.Claims{"sub": "1", "exp": now.Add(-time.Hour).Unix()}, 0)
	require.NoError(t, err)

	// exp is not checked without lifetime
	_, err = c.Decode(at.Token())
	require.NoError(t, err)

	_, err = c.Decode(at.Token(), jwt.WithExpirationCheck(true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrExpired))
}

func TestAudience(t *testing.T) {
	cfg := &authtoken.Config{
		SecretKeys: keyring.Single[any]("secret"),
		Algorithms: keyring.Single("HS256"),
		Audiences:  keyring.Single("app1"),
	}
	c, err := authtoken.New(cfg)
	require.NoError(t, err)

	at, err := c.Encode(jwt.Claims{"sub": "1", "aud": "app2"}, 0)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrAudienceMismatch))

	at, err = c.Encode(jwt.Claims{"sub": "1", "aud": "app1"}, 0)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.NoError(t, err)

	at, err = c.Encode(jwt.Claims{"sub": "1", "aud": []string{"app2", "app1"}}, 0)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.NoError(t, err)

	at, err = c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "app1", at.Payload()["aud"])
}

func TestMultiTenantAudience(t *testing.T) {
	cfg := &authtoken.Config{
		SecretKeys: keyring.List[any]("tenant0", "tenant1"),
		Algorithms: keyring.List("HS256", "HS384"),
		Audiences:  keyring.List("app0", "app1"),
	}
	c, err := authtoken.New(cfg)
	require.NoError(t, err)

	// tenant 1 issues its own audience
	at, err := c.Encode(jwt.Claims{"sub": "1", "aud": "app1"}, 1)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.NoError(t, err)

	// default aud is of index 0
	at, err = c.Encode(jwt.Claims{"sub": "1"}, 1)
	require.NoError(t, err)
	_, err = c.Decode(at.Token())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrAudienceMismatch))
}

func TestIndexValidation(t *testing.T) {
	p := newCounting(time.Now)
	cfg := &authtoken.Config{
		SecretKeys: keyring.List[any]("K0", "K1", "K2"),
		Algorithms: keyring.List("HS256", "HS256"),
	}
	c, err := authtoken.New(cfg, authtoken.WithPrimitive(p))
	require.NoError(t, err)

	_, err = c.Policy().Algorithm(2)
	require.Error(t, err)
	assert.True(t, keyring.IsInvalidKeyIndex(err))
	assert.EqualError(t, err, "invalid key index: algorithm[2]")

	_, err = c.Encode(jwt.Claims{"sub": "1"}, 2)
	require.Error(t, err)
	assert.True(t, keyring.IsInvalidKeyIndex(err))
	assert.Equal(t, 0, p.signed)

	_, err = c.Encode(jwt.Claims{"sub": "1"}, 5)
	assert.EqualError(t, err, "invalid key index: secret_key[5]")
	assert.Equal(t, 0, p.signed)

	// signed by K2 which has no algorithm: index 0 and 1 fail,
	// index 2 is a configuration error
	token, err := jwt.NewPrimitive().Sign(jwt.Claims{"sub": "1"}, "K2", "HS256")
	require.NoError(t, err)
	_, err = c.Decode(token)
	require.Error(t, err)
	assert.EqualError(t, err, "invalid key index: algorithm[2]")
	assert.Equal(t, []any{"K0", "K1"}, p.verified)

	_, err = c.Policy().Audience(0)
	assert.EqualError(t, err, "invalid key index: audience[0]")
}

func TestEmptyConfiguration(t *testing.T) {
	p := newCounting(time.Now)
	c, err := authtoken.New(&authtoken.Config{}, authtoken.WithPrimitive(p))
	require.NoError(t, err)

	_, err = c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.Error(t, err)
	assert.True(t, keyring.IsInvalidKeyIndex(err))
	assert.Equal(t, 0, p.signed)

	_, err = c.Decode("any.token.value")
	require.Error(t, err)
	assert.True(t, jwt.IsVerificationError(err))
	assert.True(t, errors.Is(err, jwt.ErrNoUsableKey))
	assert.EqualError(t, err, "no verification key configured")
	assert.Empty(t, p.verified)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = authtoken.New(nil)
	assert.EqualError(t, err, "configuration not provided")
	assert.Panics(t, func() {
		authtoken.MustNew(nil)
	})
}

func TestPublicKeyPrecedence(t *testing.T) {
	rsaKey, err := jwt.GenerateKey("RS256")
	require.NoError(t, err)
	ecKey, err := jwt.GenerateKey("ES256")
	require.NoError(t, err)

	signer := &authtoken.Config{
		SecretKeys: keyring.List[any]("hmac", rsaKey, ecKey),
		Algorithms: keyring.List("HS256", "RS256", "ES256"),
	}
	verifier := &authtoken.Config{
		// secret key at index 1 is overridden by the public key
		SecretKeys: keyring.List[any]("hmac", "not-used"),
		PublicKeys: keyring.Indexed(map[int]any{
			1: &rsaKey.(*rsa.PrivateKey).PublicKey,
			2: &ecKey.(*ecdsa.PrivateKey).PublicKey,
		}),
		Algorithms: keyring.List("HS256", "RS256", "ES256"),
	}

	sc := authtoken.MustNew(signer)
	p := newCounting(time.Now)
	vc := authtoken.MustNew(verifier, authtoken.WithPrimitive(p))

	for _, index := range []int{0, 1, 2} {
		at, err := sc.Encode(jwt.Claims{"sub": "x", "idx": index}, index)
		require.NoError(t, err)

		dt, err := vc.Decode(at.Token())
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(index), dt.Payload().String("idx"))
	}
	assert.NotContains(t, p.verified, "not-used")

	entries, err := vc.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "not-used", entries[1].SecretKey)
	assert.Equal(t, &rsaKey.(*rsa.PrivateKey).PublicKey, entries[1].PublicKey)
	assert.Equal(t, "ES256", entries[2].Algorithm)
	assert.Nil(t, entries[2].SecretKey)
}

func TestLazySources(t *testing.T) {
	current := "K0"
	calls := 0
	cfg := &authtoken.Config{
		SecretKeys: keyring.Lazy(func() (keyring.Source[any], error) {
			calls++
			return keyring.Single[any](current), nil
		}),
		Algorithms: keyring.Lazy(func() (keyring.Source[string], error) {
			return keyring.List("HS256"), nil
		}),
	}
	c := authtoken.MustNew(cfg)

	at, err := c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)

	current = "K1"
	_, err = c.Decode(at.Token())
	require.Error(t, err, "key material is not cached")
	assert.True(t, errors.Is(err, jwt.ErrSignatureInvalid))
	assert.Equal(t, 2, calls)

	failing := &authtoken.Config{
		SecretKeys: keyring.Lazy(func() (keyring.Source[any], error) {
			return keyring.None[any](), errors.New("secret store unavailable")
		}),
		Algorithms: keyring.Single("HS256"),
	}
	c = authtoken.MustNew(failing)
	_, err = c.Encode(jwt.Claims{}, 0)
	assert.EqualError(t, err, "unable to resolve lazy source: secret store unavailable")
	_, err = c.Decode(at.Token())
	assert.EqualError(t, err, "unable to resolve lazy source: secret store unavailable")
}

func TestAuthToken_JSON(t *testing.T) {
	c := authtoken.MustNew(&authtoken.Config{
		SecretKeys: keyring.Single[any]("secret"),
		Algorithms: keyring.Single("HS256"),
	})
	at, err := c.Encode(jwt.Claims{"sub": "1"}, 0)
	require.NoError(t, err)

	js, err := json.Marshal(at)
	require.NoError(t, err)
	assert.Equal(t, `{"jwt":"`+at.Token()+`"}`, string(js))

	// payload is a copy
	p := at.Payload()
	p["sub"] = "2"
	assert.Equal(t, "1", at.Subject())
}
