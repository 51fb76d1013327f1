package server

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config   Config
	Logger   *slog.Logger
	Store    StateStore
	Signer   *Signer
	Provider IdentityProvider
	Issuer   Issuer
	Local    *LocalIssuer
	JWKS     *JWKSManager

	// MCP, when set, is mounted at /mcp and serves the session's
	// capability surface.
	MCP http.Handler
}

// NewApp wires together the application state from configuration. Missing
// required configuration surfaces here, not mid-flow.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store StateStore
	if cfg.Broker.Redis.Addr != "" {
		redisStore, err := NewRedisStore(ctx, cfg.Broker.Redis)
		if err != nil {
			return nil, err
		}
		store = redisStore
	} else {
		store = NewMemoryStore()
	}

	provider, err := NewProvider(ctx, cfg.Upstream, cfg.CallbackURL(), logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Signer:   NewSigner(cfg.Upstream.ClientSecret),
		Provider: provider,
	}

	if cfg.Issuer.Enabled {
		jwks, err := NewJWKSManager()
		if err != nil {
			return nil, err
		}
		local := NewLocalIssuer(cfg, store, jwks)
		app.JWKS = jwks
		app.Local = local
		app.Issuer = local
	}

	return app, nil
}

// handleAuthorize is the intake: parse via the downstream issuer, persist a
// pending record, then either redirect upstream or render the consent page.
func (a *App) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if a.Issuer == nil {
		writeFlowError(w, flowErr(ErrProviderMisconfigured, "no downstream issuer is wired"))
		return
	}

	req, err := a.Issuer.ParseAuthorizationRequest(r)
	if err != nil {
		a.Logger.Warn("authorize invalid request", "error", err)
		writeFlowError(w, flowErr(ErrInvalidRequest, "%s", err.Error()))
		return
	}

	pending := PendingAuthorization{
		RelayID:   NewRelayID(),
		Request:   req,
		CreatedAt: time.Now(),
	}
	if err := SavePending(r.Context(), a.Store, pending); err != nil {
		a.Logger.Error("persist pending authorization", "error", err)
		writeFlowError(w, err)
		return
	}

	if a.Config.Broker.ConsentPage {
		a.renderConsent(w, pending)
		return
	}

	a.redirectUpstream(w, r, pending.RelayID)
}

// handleAuthorizeConfirm consumes the consent confirmation and performs the
// upstream redirect. The pending record is read but not consumed; only the
// callback burns it.
func (a *App) handleAuthorizeConfirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeFlowError(w, flowErr(ErrInvalidRequest, "invalid form"))
		return
	}
	relayID := r.FormValue("relay_id")
	if relayID == "" {
		writeFlowError(w, flowErr(ErrInvalidRequest, "missing relay_id"))
		return
	}

	_, ok, err := PeekPending(r.Context(), a.Store, relayID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if !ok {
		writeFlowError(w, flowErr(ErrExpiredState, "authorization attempt expired or unknown"))
		return
	}

	a.redirectUpstream(w, r, relayID)
}

// redirectUpstream issues the redirect toward the upstream IdP, binding the
// outbound state to the browser via the CSRF cookie.
func (a *App) redirectUpstream(w http.ResponseWriter, r *http.Request, relayID string) {
	state := relayID
	if a.signatureEnabled() {
		state = a.Signer.Sign(relayID)
	}

	http.SetCookie(w, relayCookie(state, a.secureCookies()))
	http.Redirect(w, r, a.Provider.AuthCodeURL(state), http.StatusFound)
}

// handleCallback validates the upstream redirect, consumes the pending record
// exactly once, resolves the identity, and bridges to the downstream issuer.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if upstreamErr := q.Get("error"); upstreamErr != "" {
		a.failCallback(w, flowErr(ErrUpstreamOAuth, "%s: %s", upstreamErr, q.Get("error_description")))
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		a.failCallback(w, flowErr(ErrInvalidRequest, "missing code or state"))
		return
	}

	relayID := state
	if a.signatureEnabled() {
		verified, ok := a.Signer.Verify(state)
		if !ok {
			a.failCallback(w, flowErr(ErrInvalidStateSignature, "state signature mismatch"))
			return
		}
		relayID = verified
	}
	if a.cookieCheckEnabled() {
		if bound := cookieState(r); bound != state {
			a.failCallback(w, flowErr(ErrInvalidState, "state does not match browser binding"))
			return
		}
	}

	// Consume before any network call so a duplicate callback fails fast at
	// the lookup rather than double-spending the code.
	pending, ok, err := ConsumePending(r.Context(), a.Store, relayID)
	if err != nil {
		a.Logger.Error("consume pending authorization", "error", err)
		a.failCallback(w, err)
		return
	}
	if !ok {
		a.failCallback(w, flowErr(ErrExpiredState, "authorization attempt expired or unknown"))
		return
	}

	accessToken, err := a.Provider.Exchange(r.Context(), code)
	if err != nil {
		a.Logger.Warn("token exchange failed", "relay_id", relayID, "error", err)
		a.failCallback(w, err)
		return
	}

	identity, err := a.Provider.ResolveIdentity(r.Context(), accessToken)
	if err != nil {
		a.Logger.Warn("identity resolve failed", "relay_id", relayID, "error", err)
		a.failCallback(w, err)
		return
	}

	if err := RememberIdentity(r.Context(), a.Store, identity, time.Now()); err != nil {
		a.Logger.Warn("identity snapshot cache write failed", "login", identity.Login, "error", err)
	}

	if a.Issuer == nil {
		a.failCallback(w, flowErr(ErrProviderMisconfigured, "no downstream issuer is wired"))
		return
	}

	userID := identity.Login
	if userID == "" {
		userID = identity.ProviderID
	}

	redirectURL, err := a.Issuer.CompleteAuthorization(r.Context(), CompletionRequest{
		UserID:  userID,
		Scope:   pending.Request.Scope,
		Request: pending.Request,
		Props: SessionProps{
			Login:       identity.Login,
			DisplayName: identity.DisplayName,
			Email:       identity.Email,
			AccessToken: identity.AccessToken,
		},
	})
	if err != nil {
		a.Logger.Error("complete authorization", "login", identity.Login, "error", err)
		a.failCallback(w, flowErr(ErrCallbackFailed, "completing authorization failed"))
		return
	}

	a.Logger.Info("authorization completed", "login", identity.Login, "client_id", pending.Request.ClientID)

	http.SetCookie(w, clearRelayCookie(a.secureCookies()))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// failCallback renders a terminal flow error. No error path leaves the CSRF
// cookie set.
func (a *App) failCallback(w http.ResponseWriter, err error) {
	http.SetCookie(w, clearRelayCookie(a.secureCookies()))
	writeFlowError(w, err)
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *App) signatureEnabled() bool {
	return a.Config.Broker.StateValidation != StatePolicyCookie
}

func (a *App) cookieCheckEnabled() bool {
	return a.Config.Broker.StateValidation != StatePolicySignature
}

func (a *App) secureCookies() bool {
	return !a.Config.Server.DevMode
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize access</title></head>
<body>
<h1>Authorize access</h1>
<p>Client <strong>{{.ClientID}}</strong> is requesting access{{if .Scope}} with scope <code>{{.ScopeList}}</code>{{end}}.</p>
<p>Continuing signs you in with the upstream identity provider.</p>
<form method="post" action="/authorize">
<input type="hidden" name="relay_id" value="{{.RelayID}}">
<button type="submit">Continue</button>
</form>
</body>
</html>`))

func (a *App) renderConsent(w http.ResponseWriter, pending PendingAuthorization) {
	data := struct {
		ClientID  string
		Scope     []string
		ScopeList string
		RelayID   string
	}{
		ClientID:  pending.Request.ClientID,
		Scope:     pending.Request.Scope,
		ScopeList: strings.Join(pending.Request.Scope, " "),
		RelayID:   pending.RelayID,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentTemplate.Execute(w, data); err != nil {
		a.Logger.Error("render consent page", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
