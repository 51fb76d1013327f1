package server

import "time"

// AuthorizationRequest is the downstream issuer's parsed view of an inbound
// authorization request. Scope ordering is preserved through storage.
type AuthorizationRequest struct {
	ResponseType        string   `json:"response_type"`
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scope               []string `json:"scope,omitempty"`
	State               string   `json:"state,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Resources           []string `json:"resources,omitempty"`
}

// PendingAuthorization is one in-flight authorization attempt, keyed by its
// relay id in the state store. The store's TTL enforces expiry; CreatedAt is
// kept for observability only.
type PendingAuthorization struct {
	RelayID   string               `json:"relay_id"`
	Request   AuthorizationRequest `json:"request"`
	CreatedAt time.Time            `json:"created_at"`
}

// UpstreamIdentity is the caller as resolved from the upstream IdP. The
// access token is a secret: it is forwarded to the backend proxy and never
// logged or returned to the client.
type UpstreamIdentity struct {
	ProviderID  string `json:"provider_id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"-"`
}

// IdentitySnapshot is the loggable subset of an identity, cached under
// state:identity:<providerId> after a successful resolve.
type IdentitySnapshot struct {
	ProviderID  string    `json:"provider_id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Decision is the capability gate's verdict for one session. It is derived
// once at registration time and never re-evaluated per call.
type Decision struct {
	Allowed bool
	Login   string
}

// SessionProps is the ambient identity context handed to the downstream
// issuer at completion; it becomes the session's props bundle.
type SessionProps struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"-"`
}

// CompletionRequest carries everything the downstream issuer needs to mint
// the client-facing grant and produce the final redirect.
type CompletionRequest struct {
	UserID  string
	Scope   []string
	Request AuthorizationRequest
	Props   SessionProps
}
