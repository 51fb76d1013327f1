package ynab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transaction listing limits.
const (
	MinLimit     = 1
	MaxLimit     = 500
	DefaultLimit = 200
)

// Client talks to the budget backend with a bearer credential. All calls are
// read-only, single-attempt, and bounded by the client timeout.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a backend client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// HasToken reports whether a backend credential is configured. Used by the
// diagnostic capability; the token value itself is never exposed.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// ListBudgets returns the budgets visible to the credential.
func (c *Client) ListBudgets(ctx context.Context) ([]Budget, error) {
	var envelope budgetsEnvelope
	if err := c.get(ctx, "/budgets", nil, &envelope); err != nil {
		return nil, err
	}
	budgets := make([]Budget, 0, len(envelope.Data.Budgets))
	for _, b := range envelope.Data.Budgets {
		budgets = append(budgets, Budget{ID: b.ID, Name: b.Name, LastModifiedOn: b.LastModifiedOn})
	}
	return budgets, nil
}

// ListAccounts returns the accounts of one budget.
func (c *Client) ListAccounts(ctx context.Context, budgetID string) ([]Account, error) {
	if budgetID == "" {
		return nil, fmt.Errorf("budget id required")
	}
	var envelope accountsEnvelope
	if err := c.get(ctx, "/budgets/"+url.PathEscape(budgetID)+"/accounts", nil, &envelope); err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(envelope.Data.Accounts))
	for _, a := range envelope.Data.Accounts {
		accounts = append(accounts, Account{
			ID:       a.ID,
			Name:     a.Name,
			Type:     a.Type,
			OnBudget: a.OnBudget,
			Closed:   a.Closed,
			Balance:  fromMilliunits(a.Balance),
		})
	}
	return accounts, nil
}

// TransactionFilter narrows a transaction listing. A zero Limit means
// DefaultLimit; out-of-range limits are clamped to [MinLimit, MaxLimit].
type TransactionFilter struct {
	SinceDate string
	AccountID string
	Limit     int
}

// ListTransactions returns a budget's transactions, newest last, truncated to
// the filter's limit.
func (c *Client) ListTransactions(ctx context.Context, budgetID string, filter TransactionFilter) ([]Transaction, error) {
	if budgetID == "" {
		return nil, fmt.Errorf("budget id required")
	}

	path := "/budgets/" + url.PathEscape(budgetID) + "/transactions"
	if filter.AccountID != "" {
		path = "/budgets/" + url.PathEscape(budgetID) + "/accounts/" + url.PathEscape(filter.AccountID) + "/transactions"
	}
	query := url.Values{}
	if filter.SinceDate != "" {
		query.Set("since_date", filter.SinceDate)
	}

	var envelope transactionsEnvelope
	if err := c.get(ctx, path, query, &envelope); err != nil {
		return nil, err
	}

	limit := clampLimit(filter.Limit)
	wire := envelope.Data.Transactions
	if len(wire) > limit {
		wire = wire[len(wire)-limit:]
	}

	transactions := make([]Transaction, 0, len(wire))
	for _, t := range wire {
		transactions = append(transactions, Transaction{
			ID:          t.ID,
			Date:        t.Date,
			Amount:      fromMilliunits(t.Amount),
			Memo:        t.Memo,
			PayeeName:   t.PayeeName,
			CategoryID:  t.CategoryID,
			AccountID:   t.AccountID,
			AccountName: t.AccountName,
			Cleared:     t.Cleared,
			Approved:    t.Approved,
		})
	}
	return transactions, nil
}

// MonthCategories returns the categories of one budget month. An empty month
// means the current month.
func (c *Client) MonthCategories(ctx context.Context, budgetID, month string) ([]Category, error) {
	if budgetID == "" {
		return nil, fmt.Errorf("budget id required")
	}
	if month == "" {
		month = "current"
	}

	var envelope monthEnvelope
	path := "/budgets/" + url.PathEscape(budgetID) + "/months/" + url.PathEscape(month)
	if err := c.get(ctx, path, nil, &envelope); err != nil {
		return nil, err
	}

	categories := make([]Category, 0, len(envelope.Data.Month.Categories))
	for _, cat := range envelope.Data.Month.Categories {
		categories = append(categories, Category{
			ID:       cat.ID,
			Name:     cat.Name,
			Hidden:   cat.Hidden,
			Budgeted: fromMilliunits(cat.Budgeted),
			Activity: fromMilliunits(cat.Activity),
			Balance:  fromMilliunits(cat.Balance),
		})
	}
	return categories, nil
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < MinLimit:
		return MinLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
