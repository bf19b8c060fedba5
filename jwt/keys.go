package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrPrivateKeyRequired is wrapped by [KeyError] when an asymmetric origin has no signing key.
	ErrPrivateKeyRequired = errors.New("private key required")
	// ErrPublicKeyRequired is wrapped by [KeyError] when an asymmetric origin has no verification key.
	ErrPublicKeyRequired = errors.New("public key required")
	// ErrSecretRequired is wrapped by [KeyError] when a symmetric origin has no shared secret.
	ErrSecretRequired = errors.New("secret key required")
	// ErrUnsupportedAlgorithm is returned for algorithm names golang-jwt does not know.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	// ErrInvalidKey is returned when configured key material cannot be parsed for the algorithm.
	ErrInvalidKey = errors.New("invalid key material")
)

// Family classifies an algorithm by the kind of key material it needs.
type Family int

const (
	// FamilySymmetric algorithms (HS*) sign and verify with one shared secret.
	FamilySymmetric Family = iota
	// FamilyAsymmetric algorithms (RS*, ES*, PS*, EdDSA) sign with a private key and verify with a public key.
	FamilyAsymmetric
)

func (f Family) String() string {
	if f == FamilyAsymmetric {
		return "asymmetric"
	}
	return "symmetric"
}

// FamilyOf reports the key family of alg. Anything that is not RS*, ES*, PS* or EdDSA
// is treated as symmetric.
func FamilyOf(alg string) Family {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "ES"), strings.HasPrefix(alg, "PS"):
		return FamilyAsymmetric
	case alg == jwt.SigningMethodEdDSA.Alg():
		return FamilyAsymmetric
	default:
		return FamilySymmetric
	}
}

// KeyError reports missing key material for an algorithm. Its message is meant to be
// shown to operators as-is, so it reads as a sentence.
type KeyError struct {
	Algorithm string
	Err       error
}

func (e *KeyError) Error() string {
	switch {
	case errors.Is(e.Err, ErrPrivateKeyRequired):
		return "Private key is required for asymmetric algorithm " + e.Algorithm
	case errors.Is(e.Err, ErrPublicKeyRequired):
		return "Public key is required for asymmetric algorithm " + e.Algorithm
	default:
		return "Secret key is required for symmetric algorithm " + e.Algorithm
	}
}

func (e *KeyError) Unwrap() error { return e.Err }

// Keys is the resolved key material of one origin. It is either [SymmetricKeys] or
// [AsymmetricKeys]; fields may be empty, the presence check happens per call.
type Keys interface {
	Family() Family
}

// SymmetricKeys carries the shared HMAC secret.
type SymmetricKeys struct {
	Secret []byte
}

// Family implements [Keys].
func (SymmetricKeys) Family() Family { return FamilySymmetric }

// AsymmetricKeys carries a parsed private/public key pair. Either half may be nil.
type AsymmetricKeys struct {
	Private crypto.PrivateKey
	Public  crypto.PublicKey
}

// Family implements [Keys].
func (AsymmetricKeys) Family() Family { return FamilyAsymmetric }

// ResolveKeys parses raw key material for alg. privateKey and publicKey accept PEM as
// string or []byte, or an already parsed crypto key. Missing material is not an error
// here; it is reported by [Manager.Sign] and [Manager.Parse].
func ResolveKeys(alg string, secret []byte, privateKey, publicKey any) (Keys, error) {
	if _, err := lookupMethod(alg); err != nil {
		return nil, err
	}
	if FamilyOf(alg) == FamilySymmetric {
		out := SymmetricKeys{}
		if len(secret) > 0 {
			out.Secret = append([]byte(nil), secret...)
		}
		return out, nil
	}

	priv, err := parsePrivateKey(alg, privateKey)
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(alg, publicKey)
	if err != nil {
		return nil, err
	}
	return AsymmetricKeys{Private: priv, Public: pub}, nil
}

func lookupMethod(alg string) (jwt.SigningMethod, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil || method == jwt.SigningMethodNone {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return method, nil
}

func pemBytes(v any) ([]byte, bool) {
	switch k := v.(type) {
	case string:
		if strings.TrimSpace(k) == "" {
			return nil, true
		}
		return []byte(k), true
	case []byte:
		if len(k) == 0 {
			return nil, true
		}
		return k, true
	default:
		return nil, false
	}
}

func parsePrivateKey(alg string, v any) (crypto.PrivateKey, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := pemBytes(v); ok {
		if raw == nil {
			return nil, nil
		}
		var (
			key crypto.PrivateKey
			err error
		)
		switch {
		case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
			key, err = jwt.ParseRSAPrivateKeyFromPEM(raw)
		case strings.HasPrefix(alg, "ES"):
			key, err = jwt.ParseECPrivateKeyFromPEM(raw)
		default:
			key, err = jwt.ParseEdPrivateKeyFromPEM(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s private key: %v", ErrInvalidKey, alg, err)
		}
		return key, nil
	}

	switch k := v.(type) {
	case *rsa.PrivateKey:
		if strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") {
			return k, nil
		}
	case *ecdsa.PrivateKey:
		if strings.HasPrefix(alg, "ES") {
			return k, nil
		}
	case ed25519.PrivateKey:
		if alg == jwt.SigningMethodEdDSA.Alg() {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: %T cannot sign %s", ErrInvalidKey, v, alg)
}

func parsePublicKey(alg string, v any) (crypto.PublicKey, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := pemBytes(v); ok {
		if raw == nil {
			return nil, nil
		}
		var (
			key crypto.PublicKey
			err error
		)
		switch {
		case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
			key, err = jwt.ParseRSAPublicKeyFromPEM(raw)
		case strings.HasPrefix(alg, "ES"):
			key, err = jwt.ParseECPublicKeyFromPEM(raw)
		default:
			key, err = jwt.ParseEdPublicKeyFromPEM(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s public key: %v", ErrInvalidKey, alg, err)
		}
		return key, nil
	}

	switch k := v.(type) {
	case *rsa.PublicKey:
		if strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") {
			return k, nil
		}
	case *ecdsa.PublicKey:
		if strings.HasPrefix(alg, "ES") {
			return k, nil
		}
	case ed25519.PublicKey:
		if alg == jwt.SigningMethodEdDSA.Alg() {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: %T cannot verify %s", ErrInvalidKey, v, alg)
}
