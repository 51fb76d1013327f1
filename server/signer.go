package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const stateSeparator = "."

// Signer derives the signed relay state: the relay id concatenated with a
// keyed digest of itself. The token proves the callback's state parameter was
// produced by this broker without carrying any secret material.
type Signer struct {
	secret []byte
}

// NewSigner keys the signer with the broker's upstream client secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns relayID + "." + hex(HMAC-SHA256(relayID, secret)).
func (s *Signer) Sign(relayID string) string {
	return relayID + stateSeparator + s.digest(relayID)
}

// Verify splits a signed state back into its relay id, recomputes the
// expected digest, and compares in constant time. A malformed token or a
// digest mismatch both fail verification.
func (s *Signer) Verify(state string) (string, bool) {
	relayID, signature, found := strings.Cut(state, stateSeparator)
	if !found || relayID == "" || signature == "" {
		return "", false
	}
	expected := s.digest(relayID)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}
	return relayID, true
}

func (s *Signer) digest(relayID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(relayID))
	return hex.EncodeToString(mac.Sum(nil))
}
