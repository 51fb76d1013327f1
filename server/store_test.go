package server

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newTestStore(at time.Time) (*MemoryStore, *time.Time) {
	clock := at
	store := NewMemoryStore()
	store.now = func() time.Time { return clock }
	return store, &clock
}

func TestMemoryStoreExpiry(t *testing.T) {
	store, clock := newTestStore(time.Unix(1700000000, 0))
	ctx := context.Background()

	if err := store.Put(ctx, "state:pending:x", []byte("payload"), PendingTTL); err != nil {
		t.Fatalf("Put: %v", err)
	}

	*clock = clock.Add(PendingTTL - time.Second)
	if _, ok, _ := store.Get(ctx, "state:pending:x"); !ok {
		t.Fatal("entry expired before its TTL elapsed")
	}

	*clock = clock.Add(2 * time.Second)
	if _, ok, _ := store.Get(ctx, "state:pending:x"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestMemoryStoreDeleteAbsentKey(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Delete(context.Background(), "state:pending:missing"); err != nil {
		t.Fatalf("Delete on absent key: %v", err)
	}
}

func TestPendingRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := PendingAuthorization{
		RelayID: NewRelayID(),
		Request: AuthorizationRequest{
			ResponseType:        "code",
			ClientID:            "mcp-client",
			RedirectURI:         "https://client.example/cb",
			Scope:               []string{"openid", "profile", "email"},
			State:               "client-state",
			CodeChallenge:       "abc",
			CodeChallengeMethod: "S256",
		},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := SavePending(ctx, store, pending); err != nil {
		t.Fatalf("SavePending: %v", err)
	}

	got, ok, err := ConsumePending(ctx, store, pending.RelayID)
	if err != nil || !ok {
		t.Fatalf("ConsumePending: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, pending) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, pending)
	}
	// Scope order must survive the trip untouched.
	if !reflect.DeepEqual(got.Request.Scope, []string{"openid", "profile", "email"}) {
		t.Fatalf("scope order changed: %v", got.Request.Scope)
	}
}

func TestConsumePendingIsSingleUse(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := PendingAuthorization{RelayID: "relay-1", CreatedAt: time.Now().UTC()}
	if err := SavePending(ctx, store, pending); err != nil {
		t.Fatalf("SavePending: %v", err)
	}

	if _, ok, _ := ConsumePending(ctx, store, "relay-1"); !ok {
		t.Fatal("first consumption missed")
	}
	if _, ok, _ := ConsumePending(ctx, store, "relay-1"); ok {
		t.Fatal("second consumption of the same relay id succeeded")
	}
}

func TestPeekPendingDoesNotConsume(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := PendingAuthorization{RelayID: "relay-1", CreatedAt: time.Now().UTC()}
	if err := SavePending(ctx, store, pending); err != nil {
		t.Fatalf("SavePending: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, ok, _ := PeekPending(ctx, store, "relay-1"); !ok {
			t.Fatalf("peek %d missed", i)
		}
	}
	if _, ok, _ := ConsumePending(ctx, store, "relay-1"); !ok {
		t.Fatal("record gone after peeks")
	}
}

func TestIdentitySnapshotRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	identity := UpstreamIdentity{
		ProviderID:  "12345",
		Login:       "alice",
		DisplayName: "Alice Doe",
		Email:       "alice@example.com",
		AccessToken: "gho_secret",
	}
	resolvedAt := time.Unix(1700000000, 0).UTC()
	if err := RememberIdentity(ctx, store, identity, resolvedAt); err != nil {
		t.Fatalf("RememberIdentity: %v", err)
	}

	snapshot, ok, err := LookupIdentity(ctx, store, "12345")
	if err != nil || !ok {
		t.Fatalf("LookupIdentity: ok=%v err=%v", ok, err)
	}
	want := IdentitySnapshot{
		ProviderID:  "12345",
		Login:       "alice",
		DisplayName: "Alice Doe",
		Email:       "alice@example.com",
		ResolvedAt:  resolvedAt,
	}
	if !reflect.DeepEqual(snapshot, want) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", snapshot, want)
	}

	// The upstream access token must never land in the store.
	raw, ok, _ := store.Get(ctx, identityKeyPrefix+"12345")
	if !ok {
		t.Fatal("raw snapshot missing")
	}
	if strings.Contains(string(raw), "gho_secret") {
		t.Fatalf("stored snapshot leaks the access token: %s", raw)
	}
}
