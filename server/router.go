package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router for the authorization relay.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))

	r.Get("/authorize", a.handleAuthorize)
	r.Post("/authorize", a.handleAuthorizeConfirm)
	r.Get("/callback", a.handleCallback)
	r.Get("/healthz", a.handleHealthz)

	if a.Local != nil {
		r.Post("/token", a.Local.HandleToken)
		r.Get("/.well-known/jwks.json", a.Local.HandleJWKS)
	}

	if a.MCP != nil {
		r.Handle("/mcp", a.MCP)
		r.Handle("/mcp/*", a.MCP)
	}

	return r
}
