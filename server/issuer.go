package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the downstream OAuth issuer the broker delegates to: it parses
// inbound authorization requests and mints the client-facing grant. Any
// conforming implementation can be substituted, including a test double.
type Issuer interface {
	ParseAuthorizationRequest(r *http.Request) (AuthorizationRequest, error)
	CompleteAuthorization(ctx context.Context, comp CompletionRequest) (string, error)
}

// LocalIssuer is the built-in downstream issuer for standalone deployments.
// It validates clients from configuration, stores one-time grants in the
// state store, and mints RS256 access tokens at the token endpoint.
type LocalIssuer struct {
	store     StateStore
	jwks      *JWKSManager
	clients   []ClientConfig
	issuerURL string
	grantTTL  time.Duration
	accessTTL time.Duration
}

// NewLocalIssuer wires the built-in issuer.
func NewLocalIssuer(cfg Config, store StateStore, jwks *JWKSManager) *LocalIssuer {
	return &LocalIssuer{
		store:     store,
		jwks:      jwks,
		clients:   cfg.Issuer.Clients,
		issuerURL: strings.TrimSuffix(cfg.Server.PublicURL, "/"),
		grantTTL:  cfg.Issuer.GrantTTL,
		accessTTL: cfg.Issuer.AccessTTL,
	}
}

// ParseAuthorizationRequest normalizes an inbound /authorize request. A
// missing client id or redirect URI is an error and nothing is mutated.
func (li *LocalIssuer) ParseAuthorizationRequest(r *http.Request) (AuthorizationRequest, error) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	if clientID == "" {
		return AuthorizationRequest{}, fmt.Errorf("client_id required")
	}
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		return AuthorizationRequest{}, fmt.Errorf("redirect_uri required")
	}
	if len(li.clients) > 0 {
		client, ok := li.lookupClient(clientID)
		if !ok {
			return AuthorizationRequest{}, fmt.Errorf("unknown client %q", clientID)
		}
		if !validRedirect(client, redirectURI) {
			return AuthorizationRequest{}, fmt.Errorf("redirect_uri not registered for client %q", clientID)
		}
	}

	responseType := q.Get("response_type")
	if responseType == "" {
		responseType = "code"
	}
	if responseType != "code" {
		return AuthorizationRequest{}, fmt.Errorf("unsupported response_type %q", responseType)
	}

	return AuthorizationRequest{
		ResponseType:        responseType,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               splitScope(q.Get("scope")),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Resources:           q["resource"],
	}, nil
}

// storedGrant is the server-side record behind a one-time authorization code.
// The upstream access token lives only here, never in the minted JWT.
type storedGrant struct {
	Code        string   `json:"code"`
	ClientID    string   `json:"client_id"`
	RedirectURI string   `json:"redirect_uri"`
	Scope       []string `json:"scope,omitempty"`
	UserID      string   `json:"user_id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	AccessToken string   `json:"access_token,omitempty"`

	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// CompleteAuthorization mints a one-time code bound to the original request
// and returns the client-facing redirect target.
func (li *LocalIssuer) CompleteAuthorization(ctx context.Context, comp CompletionRequest) (string, error) {
	grant := storedGrant{
		Code:                uuid.NewString(),
		ClientID:            comp.Request.ClientID,
		RedirectURI:         comp.Request.RedirectURI,
		Scope:               comp.Scope,
		UserID:              comp.UserID,
		Login:               comp.Props.Login,
		DisplayName:         comp.Props.DisplayName,
		Email:               comp.Props.Email,
		AccessToken:         comp.Props.AccessToken,
		CodeChallenge:       comp.Request.CodeChallenge,
		CodeChallengeMethod: comp.Request.CodeChallengeMethod,
	}

	payload, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("marshal grant: %w", err)
	}
	if err := li.store.Put(ctx, grantKeyPrefix+grant.Code, payload, li.grantTTL); err != nil {
		return "", fmt.Errorf("persist grant: %w", err)
	}

	redirect, err := url.Parse(comp.Request.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect_uri: %w", err)
	}
	values := redirect.Query()
	values.Set("code", grant.Code)
	if comp.Request.State != "" {
		values.Set("state", comp.Request.State)
	}
	redirect.RawQuery = values.Encode()
	return redirect.String(), nil
}

// GrantClaims are the claims minted into local access tokens.
type GrantClaims struct {
	Scope string `json:"scope,omitempty"`
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// HandleToken is the built-in issuer's token endpoint: it consumes the
// one-time code and mints an RS256 access token.
func (li *LocalIssuer) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthTokenError(w, "invalid_request", "invalid form")
		return
	}
	if r.FormValue("grant_type") != "authorization_code" {
		oauthTokenError(w, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	code := r.FormValue("code")
	if code == "" {
		oauthTokenError(w, "invalid_request", "missing code")
		return
	}

	grant, ok, err := li.consumeGrant(r.Context(), code)
	if err != nil || !ok {
		oauthTokenError(w, "invalid_grant", "code invalid or expired")
		return
	}
	if grant.ClientID != r.FormValue("client_id") {
		oauthTokenError(w, "invalid_grant", "client mismatch")
		return
	}
	if grant.RedirectURI != r.FormValue("redirect_uri") {
		oauthTokenError(w, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if grant.CodeChallenge != "" {
		if err := verifyPKCE(grant.CodeChallenge, grant.CodeChallengeMethod, r.FormValue("code_verifier")); err != nil {
			oauthTokenError(w, "invalid_grant", err.Error())
			return
		}
	}

	now := time.Now()
	claims := GrantClaims{
		Scope: strings.Join(grant.Scope, " "),
		Login: grant.Login,
		Name:  grant.DisplayName,
		Email: grant.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    li.issuerURL,
			Subject:   grant.UserID,
			Audience:  jwt.ClaimStrings{grant.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(li.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := li.jwks.Sign(claims)
	if err != nil {
		oauthTokenError(w, "server_error", "failed to mint token")
		return
	}

	writeJSON(w, map[string]any{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int64(li.accessTTL.Seconds()),
		"scope":        strings.Join(grant.Scope, " "),
	})
}

// HandleJWKS serves the issuer's public keys.
func (li *LocalIssuer) HandleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, li.jwks.PublicJWKS())
}

// ValidateAccessToken parses and verifies a locally minted token.
func (li *LocalIssuer) ValidateAccessToken(tokenString string) (*GrantClaims, error) {
	claims := &GrantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, li.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(li.issuerURL),
	)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}

func (li *LocalIssuer) consumeGrant(ctx context.Context, code string) (storedGrant, bool, error) {
	payload, ok, err := li.store.Get(ctx, grantKeyPrefix+code)
	if err != nil || !ok {
		return storedGrant{}, false, err
	}
	if err := li.store.Delete(ctx, grantKeyPrefix+code); err != nil {
		return storedGrant{}, false, err
	}
	var grant storedGrant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return storedGrant{}, false, err
	}
	return grant, true, nil
}

func (li *LocalIssuer) lookupClient(clientID string) (ClientConfig, bool) {
	for _, c := range li.clients {
		if c.ClientID == clientID {
			return c, true
		}
	}
	return ClientConfig{}, false
}

func validRedirect(client ClientConfig, redirectURI string) bool {
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

func verifyPKCE(challenge, method, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("missing code_verifier")
	}
	switch method {
	case "S256", "":
		sum := sha256.Sum256([]byte(verifier))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			return fmt.Errorf("pkce verification failed")
		}
	case "plain":
		if verifier != challenge {
			return fmt.Errorf("pkce verification failed")
		}
	default:
		return fmt.Errorf("unsupported code_challenge_method %q", method)
	}
	return nil
}

func oauthTokenError(w http.ResponseWriter, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}
