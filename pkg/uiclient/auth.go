package uiclient

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthType represents the authentication method used against the bridge
type AuthType string

const (
	AuthTypeNone AuthType = "none"
	AuthTypeJWT  AuthType = "jwt"
)

// Authenticator adds credentials to bridge requests
type Authenticator interface {
	AddAuthHeaders(req *http.Request) error
}

type NoAuth struct{}

func (NoAuth) AddAuthHeaders(*http.Request) error { return nil }

// JWTAuthenticator signs a short lived HS256 token per request
type JWTAuthenticator struct {
	subject string
	key     []byte
	ttl     time.Duration
}

func NewJWTAuthenticator(subject, signingKey string) (*JWTAuthenticator, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("jwt signing key is empty")
	}

	return &JWTAuthenticator{
		subject: subject,
		key:     []byte(signingKey),
		ttl:     2 * time.Minute,
	}, nil
}

func (j *JWTAuthenticator) AddAuthHeaders(req *http.Request) error {
	token, err := j.generateJWT(req.Method, req.URL.Host, req.URL.Path)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (j *JWTAuthenticator) generateJWT(method, host, path string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   j.subject,
		"iss":   "thstrader",
		"nbf":   now.Unix(),
		"exp":   now.Add(j.ttl).Unix(),
		"uri":   method + " " + host + path,
		"nonce": nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewAuthenticator picks the authenticator for the configured auth type
func NewAuthenticator(authType AuthType, subject, signingKey string) (Authenticator, error) {
	switch authType {
	case "", AuthTypeNone:
		return NoAuth{}, nil
	case AuthTypeJWT:
		return NewJWTAuthenticator(subject, signingKey)
	default:
		return nil, fmt.Errorf("unknown auth type %q", authType)
	}
}
