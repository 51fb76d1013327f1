package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"sync"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSManager holds the built-in issuer's signing key and exposes its public
// half as a JSON Web Key Set.
type JWKSManager struct {
	mu      sync.RWMutex
	private *rsa.PrivateKey
	jwk     jose.JSONWebKey
	kid     string
}

// NewJWKSManager generates a fresh RSA signing key.
func NewJWKSManager() (*JWKSManager, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	kidBytes := make([]byte, 8)
	if _, err := rand.Read(kidBytes); err != nil {
		return nil, fmt.Errorf("generate key id: %w", err)
	}
	kid := hex.EncodeToString(kidBytes)

	return &JWKSManager{
		private: key,
		kid:     kid,
		jwk: jose.JSONWebKey{
			Key:       key,
			KeyID:     kid,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		},
	}, nil
}

// Sign signs claims and returns the token string with kid header set.
func (m *JWKSManager) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	m.mu.RLock()
	defer m.mu.RUnlock()
	token.Header["kid"] = m.kid
	return token.SignedString(m.private)
}

// Keyfunc is used during JWT validation.
func (m *JWKSManager) Keyfunc(_ *jwt.Token) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &m.private.PublicKey, nil
}

// PublicJWKS exposes the public key for the JWKS endpoint.
func (m *JWKSManager) PublicJWKS() jose.JSONWebKeySet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{m.jwk.Public()}}
}
