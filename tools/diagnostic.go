package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// authStatus is the diagnostic payload: booleans and the login only, never
// allowlist values or token material.
type authStatus struct {
	Authenticated          bool   `json:"authenticated"`
	AuthenticatedUsername  string `json:"authenticated_username,omitempty"`
	Allowed                bool   `json:"allowed"`
	BackendTokenConfigured bool   `json:"backend_token_configured"`
}

func (r *Registry) registerDiagnostic(s *server.MCPServer, sess Session) {
	tool := mcp.NewTool("auth_status",
		mcp.WithDescription("Report whether this session is authenticated, whether it matched the access allowlist, and whether a backend credential is configured"),
	)
	s.AddTool(tool, func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := authStatus{
			Authenticated:          sess.Login != "",
			AuthenticatedUsername:  sess.Login,
			Allowed:                sess.Allowed,
			BackendTokenConfigured: r.backend.HasToken(),
		}
		payload, err := json.Marshal(status)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("format status: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}
