package ynab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func newBackend(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "backend-token")
}

func TestFromMilliunits(t *testing.T) {
	tests := []struct {
		in   int64
		want float64
	}{
		{123456, 123.456},
		{-50000, -50},
		{0, 0},
		{1, 0.001},
		{-1, -0.001},
		{1000000, 1000},
	}
	for _, tt := range tests {
		if got := fromMilliunits(tt.in); got != tt.want {
			t.Errorf("fromMilliunits(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-5, MinLimit},
		{1, 1},
		{200, 200},
		{500, 500},
		{501, MaxLimit},
		{10000, MaxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestListBudgets(t *testing.T) {
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/budgets" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer backend-token" {
			t.Fatalf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"data":{"budgets":[
			{"id":"b1","name":"Household","last_modified_on":"2026-08-01T10:00:00Z"},
			{"id":"b2","name":"Travel"}
		]}}`)
	}))

	budgets, err := client.ListBudgets(context.Background())
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	want := []Budget{
		{ID: "b1", Name: "Household", LastModifiedOn: "2026-08-01T10:00:00Z"},
		{ID: "b2", Name: "Travel"},
	}
	if !reflect.DeepEqual(budgets, want) {
		t.Fatalf("budgets mismatch:\n got %+v\nwant %+v", budgets, want)
	}
}

func TestListAccountsConvertsMilliunits(t *testing.T) {
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/budgets/b1/accounts" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":{"accounts":[
			{"id":"a1","name":"Checking","type":"checking","on_budget":true,"closed":false,"balance":123456},
			{"id":"a2","name":"Card","type":"creditCard","on_budget":true,"closed":false,"balance":-50000}
		]}}`)
	}))

	accounts, err := client.ListAccounts(context.Background(), "b1")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("account count = %d", len(accounts))
	}
	if accounts[0].Balance != 123.456 {
		t.Fatalf("balance = %v, want 123.456", accounts[0].Balance)
	}
	if accounts[1].Balance != -50 {
		t.Fatalf("balance = %v, want -50", accounts[1].Balance)
	}
}

func TestListAccountsRequiresBudgetID(t *testing.T) {
	client := NewClient("http://unused.invalid", "token")
	if _, err := client.ListAccounts(context.Background(), ""); err == nil {
		t.Fatal("expected an error for a missing budget id")
	}
}

func TestListTransactions(t *testing.T) {
	var gotPath, gotQuery string
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"data":{"transactions":[
			{"id":"t1","date":"2026-08-01","amount":-4250,"payee_name":"Grocer","account_id":"a1","cleared":"cleared","approved":true},
			{"id":"t2","date":"2026-08-02","amount":123456,"account_id":"a1","approved":false}
		]}}`)
	}))

	txns, err := client.ListTransactions(context.Background(), "b1", TransactionFilter{SinceDate: "2026-08-01"})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if gotPath != "/budgets/b1/transactions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "since_date=2026-08-01" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(txns) != 2 {
		t.Fatalf("transaction count = %d", len(txns))
	}
	if txns[0].Amount != -4.25 {
		t.Fatalf("amount = %v, want -4.25", txns[0].Amount)
	}
	if txns[1].Amount != 123.456 {
		t.Fatalf("amount = %v, want 123.456", txns[1].Amount)
	}
}

func TestListTransactionsAccountScoped(t *testing.T) {
	var gotPath string
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"data":{"transactions":[]}}`)
	}))

	if _, err := client.ListTransactions(context.Background(), "b1", TransactionFilter{AccountID: "a7"}); err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if gotPath != "/budgets/b1/accounts/a7/transactions" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestListTransactionsKeepsNewestWithinLimit(t *testing.T) {
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"transactions":[
			{"id":"t1","date":"2026-08-01","amount":1000,"account_id":"a1"},
			{"id":"t2","date":"2026-08-02","amount":2000,"account_id":"a1"},
			{"id":"t3","date":"2026-08-03","amount":3000,"account_id":"a1"}
		]}}`)
	}))

	txns, err := client.ListTransactions(context.Background(), "b1", TransactionFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("transaction count = %d, want 2", len(txns))
	}
	// The listing is ordered oldest first; the limit keeps the tail.
	if txns[0].ID != "t2" || txns[1].ID != "t3" {
		t.Fatalf("kept %s and %s, want t2 and t3", txns[0].ID, txns[1].ID)
	}
}

func TestMonthCategories(t *testing.T) {
	var gotPath string
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"data":{"month":{"month":"2026-08-01","categories":[
			{"id":"c1","name":"Groceries","hidden":false,"budgeted":400000,"activity":-123456,"balance":276544}
		]}}}`)
	}))

	categories, err := client.MonthCategories(context.Background(), "b1", "2026-08-01")
	if err != nil {
		t.Fatalf("MonthCategories: %v", err)
	}
	if gotPath != "/budgets/b1/months/2026-08-01" {
		t.Fatalf("path = %q", gotPath)
	}
	want := []Category{{
		ID:       "c1",
		Name:     "Groceries",
		Budgeted: 400,
		Activity: -123.456,
		Balance:  276.544,
	}}
	if !reflect.DeepEqual(categories, want) {
		t.Fatalf("categories mismatch:\n got %+v\nwant %+v", categories, want)
	}
}

func TestMonthCategoriesDefaultsToCurrent(t *testing.T) {
	var gotPath string
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"data":{"month":{"month":"current","categories":[]}}}`)
	}))

	if _, err := client.MonthCategories(context.Background(), "b1", ""); err != nil {
		t.Fatalf("MonthCategories: %v", err)
	}
	if gotPath != "/budgets/b1/months/current" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestBackendErrorStatus(t *testing.T) {
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"id":"401"}}`, http.StatusUnauthorized)
	}))

	if _, err := client.ListBudgets(context.Background()); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}

func TestHasToken(t *testing.T) {
	if NewClient("http://x.invalid", "").HasToken() {
		t.Fatal("empty token reported as configured")
	}
	if !NewClient("http://x.invalid", "tok").HasToken() {
		t.Fatal("configured token reported as missing")
	}
}
