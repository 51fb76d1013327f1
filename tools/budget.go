package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ledgerd/ynab"
)

func (r *Registry) registerBudgetTools(s *server.MCPServer) {
	listBudgets := mcp.NewTool("list_budgets",
		mcp.WithDescription("List the budgets visible to the configured backend credential"),
	)
	s.AddTool(listBudgets, r.handleListBudgets)

	listAccounts := mcp.NewTool("list_accounts",
		mcp.WithDescription("List the accounts of a budget"),
		mcp.WithString("budget_id",
			mcp.Required(),
			mcp.Description("Budget identifier"),
		),
	)
	s.AddTool(listAccounts, r.handleListAccounts)

	listTransactions := mcp.NewTool("list_transactions",
		mcp.WithDescription("List transactions of a budget, optionally filtered by start date and account"),
		mcp.WithString("budget_id",
			mcp.Required(),
			mcp.Description("Budget identifier"),
		),
		mcp.WithString("since_date",
			mcp.Description("Only return transactions on or after this date (ISO 8601)"),
		),
		mcp.WithString("account_id",
			mcp.Description("Restrict to one account"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of transactions to return (%d-%d, default %d)", ynab.MinLimit, ynab.MaxLimit, ynab.DefaultLimit)),
		),
	)
	s.AddTool(listTransactions, r.handleListTransactions)

	monthCategories := mcp.NewTool("get_month_categories",
		mcp.WithDescription("Get the categories of a budget month with budgeted, activity, and balance amounts"),
		mcp.WithString("budget_id",
			mcp.Required(),
			mcp.Description("Budget identifier"),
		),
		mcp.WithString("month",
			mcp.Description("Budget month (ISO 8601 date or \"current\", default \"current\")"),
		),
	)
	s.AddTool(monthCategories, r.handleMonthCategories)
}

func (r *Registry) handleListBudgets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budgets, err := r.backend.ListBudgets(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list budgets: %v", err)), nil
	}
	return jsonResult(budgets)
}

func (r *Registry) handleListAccounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budgetID, err := request.RequireString("budget_id")
	if err != nil {
		return mcp.NewToolResultError("budget_id argument is required"), nil
	}

	accounts, err := r.backend.ListAccounts(ctx, budgetID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list accounts: %v", err)), nil
	}
	return jsonResult(accounts)
}

func (r *Registry) handleListTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budgetID, err := request.RequireString("budget_id")
	if err != nil {
		return mcp.NewToolResultError("budget_id argument is required"), nil
	}

	args := request.GetArguments()
	filter := ynab.TransactionFilter{}
	if since, ok := args["since_date"].(string); ok {
		filter.SinceDate = since
	}
	if account, ok := args["account_id"].(string); ok {
		filter.AccountID = account
	}
	if limit, ok := args["limit"].(float64); ok {
		filter.Limit = int(limit)
	}

	transactions, err := r.backend.ListTransactions(ctx, budgetID, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list transactions: %v", err)), nil
	}
	return jsonResult(transactions)
}

func (r *Registry) handleMonthCategories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budgetID, err := request.RequireString("budget_id")
	if err != nil {
		return mcp.NewToolResultError("budget_id argument is required"), nil
	}

	month := "current"
	if m, ok := request.GetArguments()["month"].(string); ok && m != "" {
		month = m
	}

	categories, err := r.backend.MonthCategories(ctx, budgetID, month)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get month categories: %v", err)), nil
	}
	return jsonResult(categories)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
