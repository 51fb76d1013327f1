package tools

import (
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/server"
)

// Authenticator resolves a bearer token into a gated session.
type Authenticator func(token string) (Session, error)

// HTTPHandler serves the capability surface over streamable HTTP. Each
// session's tool set is built once, from the gate decision for its token's
// identity, and cached for the lifetime of the process.
func HTTPHandler(registry *Registry, authenticate Authenticator) http.Handler {
	h := &mcpHandler{
		registry:     registry,
		authenticate: authenticate,
		sessions:     make(map[Session]*server.StreamableHTTPServer),
	}
	return h
}

type mcpHandler struct {
	registry     *Registry
	authenticate Authenticator

	mu       sync.Mutex
	sessions map[Session]*server.StreamableHTTPServer
}

func (h *mcpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	sess, err := h.authenticate(token)
	if err != nil {
		http.Error(w, "invalid bearer token", http.StatusUnauthorized)
		return
	}

	h.serverFor(sess).ServeHTTP(w, r)
}

func (h *mcpHandler) serverFor(sess Session) *server.StreamableHTTPServer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if srv, ok := h.sessions[sess]; ok {
		return srv
	}
	srv := server.NewStreamableHTTPServer(h.registry.ServerFor(sess))
	h.sessions[sess] = srv
	return srv
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
