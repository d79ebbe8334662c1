package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/cockroachdb/errors"
	jose "github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmForKey returns the default signing algorithm for the key
func AlgorithmForKey(key any) (string, error) {
	key = unwrapKey(key)
	if s, ok := key.(crypto.Signer); ok {
		key = s.Public()
	}

	switch typ := key.(type) {
	case []byte, string:
		return "HS256", nil
	case *rsa.PublicKey:
		keySize := typ.N.BitLen()
		switch {
		case keySize >= 4096:
			return "RS512", nil
		case keySize >= 3072:
			return "RS384", nil
		default:
			return "RS256", nil
		}
	case *ecdsa.PublicKey:
		switch typ.Curve {
		case elliptic.P521():
			return "ES512", nil
		case elliptic.P384():
			return "ES384", nil
		default:
			return "ES256", nil
		}
	case ed25519.PublicKey:
		return "EdDSA", nil
	default:
		return "", errors.Errorf("public key not supported: %T", typ)
	}
}

// GenerateKey returns a new key suitable for the algorithm:
// []byte for HMAC, or crypto.Signer for asymmetric algorithms.
func GenerateKey(alg string) (any, error) {
	switch alg {
	case "HS256", "HS384", "HS512":
		size := map[string]int{"HS256": 32, "HS384": 48, "HS512": 64}[alg]
		key := make([]byte, size)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.WithStack(err)
		}
		return key, nil
	case "RS256", "PS256":
		return generateRSA(2048)
	case "RS384", "PS384":
		return generateRSA(3072)
	case "RS512", "PS512":
		return generateRSA(4096)
	case "ES256":
		return generateEC(elliptic.P256())
	case "ES384":
		return generateEC(elliptic.P384())
	case "ES512":
		return generateEC(elliptic.P521())
	case "EdDSA":
		_, pvk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return pvk, nil
	}
	return nil, errors.Errorf("unsupported algorithm: %s", alg)
}

func generateRSA(bits int) (any, error) {
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return k, nil
}

func generateEC(curve elliptic.Curve) (any, error) {
	k, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return k, nil
}

// EncodePrivateKeyToPEM returns PKCS#8 PEM encoded private key
func EncodePrivateKeyToPEM(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to marshal private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyToPEM returns PKIX PEM encoded public key
func EncodePublicKeyToPEM(key crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyFromPEM returns RSA, ECDSA or Ed25519 private key
func ParsePrivateKeyFromPEM(data []byte) (crypto.Signer, error) {
	if k, err := jwt.ParseRSAPrivateKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return k, nil
	}
	k, err := jwt.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, errors.Errorf("unable to parse private key")
	}
	signer, ok := k.(crypto.Signer)
	if !ok {
		return nil, errors.Errorf("unsupported private key: %T", k)
	}
	return signer, nil
}

// ParsePublicKeyFromPEM returns RSA, ECDSA or Ed25519 public key
func ParsePublicKeyFromPEM(data []byte) (crypto.PublicKey, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	k, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, errors.Errorf("unable to parse public key")
	}
	return k, nil
}

// KeyType returns a short description of the key for display
func KeyType(key any) string {
	switch k := unwrapKey(key).(type) {
	case nil:
		return ""
	case []byte:
		return "secret"
	case string:
		return "secret"
	case *rsa.PrivateKey:
		return "rsa-private"
	case *rsa.PublicKey:
		return "rsa-public"
	case *ecdsa.PrivateKey:
		return "ecdsa-private"
	case *ecdsa.PublicKey:
		return "ecdsa-public"
	case ed25519.PrivateKey:
		return "ed25519-private"
	case ed25519.PublicKey:
		return "ed25519-public"
	default:
		return fmt.Sprintf("%T", k)
	}
}

func unwrapKey(key any) any {
	switch k := key.(type) {
	case *jose.JSONWebKey:
		return k.Key
	case jose.JSONWebKey:
		return k.Key
	}
	return key
}

// signingKey converts the configured key to the type expected by the method
func signingKey(method jwt.SigningMethod, key any) (any, error) {
	key = unwrapKey(key)

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		return secretBytes(key)
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		if raw, ok := pemBytes(key); ok {
			return ParsePrivateKeyFromPEM(raw)
		}
		if _, ok := key.(crypto.Signer); ok {
			return key, nil
		}
	}
	return nil, errors.Errorf("invalid key type %T for %s signature", key, method.Alg())
}

// verifyKey converts the configured key to the type expected by the method,
// private keys are reduced to their public part
func verifyKey(method jwt.SigningMethod, key any) (any, error) {
	key = unwrapKey(key)

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		return secretBytes(key)
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		if raw, ok := pemBytes(key); ok {
			if pub, err := ParsePublicKeyFromPEM(raw); err == nil {
				return pub, nil
			}
			pvk, err := ParsePrivateKeyFromPEM(raw)
			if err != nil {
				return nil, err
			}
			key = pvk
		}
		if s, ok := key.(crypto.Signer); ok {
			return s.Public(), nil
		}
		switch key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			return key, nil
		}
	}
	return nil, errors.Errorf("invalid key type %T for %s signature", key, method.Alg())
}

func secretBytes(key any) ([]byte, error) {
	switch k := key.(type) {
	case []byte:
		if len(k) == 0 {
			return nil, errors.Errorf("empty secret")
		}
		return k, nil
	case string:
		if k == "" {
			return nil, errors.Errorf("empty secret")
		}
		return []byte(k), nil
	}
	return nil, errors.Errorf("invalid key type %T for HMAC signature", key)
}

func pemBytes(key any) ([]byte, bool) {
	var raw []byte
	switch k := key.(type) {
	case []byte:
		raw = k
	case string:
		raw = []byte(k)
	default:
		return nil, false
	}
	block, _ := pem.Decode(raw)
	return raw, block != nil
}
