// Package ynab is a read-only client for the budget backend. All monetary
// amounts arrive as integer milliunits and are converted to currency units
// before being returned.
package ynab

// Budget is one budget visible to the configured credential.
type Budget struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LastModifiedOn string `json:"last_modified_on,omitempty"`
}

// Account is one account within a budget. Balances are currency units.
type Account struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	OnBudget bool    `json:"on_budget"`
	Closed   bool    `json:"closed"`
	Balance  float64 `json:"balance"`
}

// Transaction is one transaction, amount in currency units.
type Transaction struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Memo        string  `json:"memo,omitempty"`
	PayeeName   string  `json:"payee_name,omitempty"`
	CategoryID  string  `json:"category_id,omitempty"`
	AccountID   string  `json:"account_id"`
	AccountName string  `json:"account_name,omitempty"`
	Cleared     string  `json:"cleared,omitempty"`
	Approved    bool    `json:"approved"`
}

// Category is one category in a budget month, amounts in currency units.
type Category struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Hidden   bool    `json:"hidden"`
	Budgeted float64 `json:"budgeted"`
	Activity float64 `json:"activity"`
	Balance  float64 `json:"balance"`
}

// Wire types mirror the backend's envelope: {"data": {...}} with milliunit
// integer amounts.

type budgetsEnvelope struct {
	Data struct {
		Budgets []wireBudget `json:"budgets"`
	} `json:"data"`
}

type wireBudget struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LastModifiedOn string `json:"last_modified_on"`
}

type accountsEnvelope struct {
	Data struct {
		Accounts []wireAccount `json:"accounts"`
	} `json:"data"`
}

type wireAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	OnBudget bool   `json:"on_budget"`
	Closed   bool   `json:"closed"`
	Balance  int64  `json:"balance"`
}

type transactionsEnvelope struct {
	Data struct {
		Transactions []wireTransaction `json:"transactions"`
	} `json:"data"`
}

type wireTransaction struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Amount      int64  `json:"amount"`
	Memo        string `json:"memo"`
	PayeeName   string `json:"payee_name"`
	CategoryID  string `json:"category_id"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Cleared     string `json:"cleared"`
	Approved    bool   `json:"approved"`
}

type monthEnvelope struct {
	Data struct {
		Month struct {
			Month      string         `json:"month"`
			Categories []wireCategory `json:"categories"`
		} `json:"month"`
	} `json:"data"`
}

type wireCategory struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Hidden   bool   `json:"hidden"`
	Budgeted int64  `json:"budgeted"`
	Activity int64  `json:"activity"`
	Balance  int64  `json:"balance"`
}

// fromMilliunits converts an integer milliunit amount to currency units.
// 123456 milliunits is exactly 123.456.
func fromMilliunits(v int64) float64 {
	return float64(v) / 1000
}
