package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angel-control/angelmon/internal/config"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	Algorithm    string // "RS256" or "HS256"
	PublicKeyPEM string
	SecretKey    string
}

// Verifier checks token signatures and extracts claims.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a verifier for one algorithm.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: cfg}

	switch cfg.Algorithm {
	case "RS256":
		key, err := parsePublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, errors.New("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %q", cfg.Algorithm)
	}
	return v, nil
}

// NewVerifierFromConfig builds a verifier from the auth section of the config.
// It returns nil, nil when authentication is disabled.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	switch cfg.Algorithm {
	case "":
		return nil, nil
	case "RS256":
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: string(pemData)})
	default:
		return NewVerifier(VerifierConfig{Algorithm: cfg.Algorithm, SecretKey: cfg.Secret})
	}
}

// VerifyToken verifies a JWT and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, v.keyFunc,
		jwt.WithValidMethods([]string{v.config.Algorithm}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return extractClaims(mapClaims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch v.config.Algorithm {
	case "RS256":
		return v.publicKey, nil
	default:
		return []byte(v.config.SecretKey), nil
	}
}

func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'sub' claim", ErrInvalidToken)
	}

	roles, err := stringSlice(claims, "roles")
	if err != nil {
		return nil, err
	}
	scopes, err := stringSlice(claims, "scopes")
	if err != nil {
		return nil, err
	}

	for _, role := range roles {
		if role != RoleViewer && role != RoleController {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
		}
	}
	for _, scope := range scopes {
		if !validScopes[scope] {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidToken, scope)
		}
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: no scopes", ErrInvalidToken)
	}

	return &Claims{Subject: sub, Roles: roles, Scopes: scopes}, nil
}

func stringSlice(claims jwt.MapClaims, key string) ([]string, error) {
	value, ok := claims[key]
	if !ok {
		return nil, nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s claim is not an array", ErrInvalidToken, key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s claim holds a non-string", ErrInvalidToken, key)
		}
		out = append(out, s)
	}
	return out, nil
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}
