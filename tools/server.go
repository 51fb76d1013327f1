// Package tools exposes the broker's capability surface as MCP tools. The
// set registered for a session is decided exactly once, from the capability
// gate's verdict: denied sessions get the diagnostic tool and nothing else.
package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"ledgerd/ynab"
)

// Backend is the read-only budget API the gated tools proxy to.
type Backend interface {
	HasToken() bool
	ListBudgets(ctx context.Context) ([]ynab.Budget, error)
	ListAccounts(ctx context.Context, budgetID string) ([]ynab.Account, error)
	ListTransactions(ctx context.Context, budgetID string, filter ynab.TransactionFilter) ([]ynab.Transaction, error)
	MonthCategories(ctx context.Context, budgetID, month string) ([]ynab.Category, error)
}

// Session is the identity context a tool server is built for.
type Session struct {
	Login   string
	Allowed bool
}

// Registry builds per-session MCP servers.
type Registry struct {
	backend Backend
	logger  *slog.Logger
}

// NewRegistry constructs the tool registry.
func NewRegistry(backend Backend, logger *slog.Logger) *Registry {
	return &Registry{backend: backend, logger: logger}
}

// ServerFor builds the MCP server for one session. Registration-time gating:
// the decision is not re-evaluated per call.
func (r *Registry) ServerFor(sess Session) *server.MCPServer {
	s := server.NewMCPServer(
		"ledgerd",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	r.registerDiagnostic(s, sess)
	if sess.Allowed {
		r.registerBudgetTools(s)
	} else {
		r.logger.Info("session gated to diagnostic capability", "login", sess.Login)
	}

	return s
}
