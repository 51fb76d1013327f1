package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Key families in the ephemeral state store.
const (
	pendingKeyPrefix  = "state:pending:"
	identityKeyPrefix = "state:identity:"
	grantKeyPrefix    = "state:grant:"
)

// StateStore is the ephemeral key/value store with per-key TTL. Get on a
// missing or expired key returns ok=false, not an error; Delete on a missing
// key is a no-op so a concurrent second consumption reads as a miss.
type StateStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore is the in-process StateStore used in dev mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore constructs the store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put stores value under key with the given TTL, replacing any prior entry.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get returns the value for key if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Delete removes key. Deleting an absent key succeeds.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// sweep drops expired entries. Must be called with mu held.
func (s *MemoryStore) sweep() {
	now := s.now()
	for k, v := range s.entries {
		if now.After(v.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// NewRelayID generates a fresh opaque relay identifier.
func NewRelayID() string {
	return uuid.NewString()
}

// SavePending writes a pending authorization under its relay id with the
// fixed pending TTL.
func SavePending(ctx context.Context, store StateStore, pending PendingAuthorization) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending authorization: %w", err)
	}
	if err := store.Put(ctx, pendingKeyPrefix+pending.RelayID, payload, PendingTTL); err != nil {
		return fmt.Errorf("persist pending authorization: %w", err)
	}
	return nil
}

// PeekPending reads a pending authorization without consuming it. Used by the
// consent confirmation step, which must not burn the record.
func PeekPending(ctx context.Context, store StateStore, relayID string) (PendingAuthorization, bool, error) {
	payload, ok, err := store.Get(ctx, pendingKeyPrefix+relayID)
	if err != nil || !ok {
		return PendingAuthorization{}, false, err
	}
	var pending PendingAuthorization
	if err := json.Unmarshal(payload, &pending); err != nil {
		return PendingAuthorization{}, false, fmt.Errorf("decode pending authorization: %w", err)
	}
	return pending, true, nil
}

// ConsumePending reads and deletes the pending record for relayID. The delete
// happens before the caller attempts any network call, so a duplicate
// callback cannot double-spend the same record: the second consumption is a
// plain miss.
func ConsumePending(ctx context.Context, store StateStore, relayID string) (PendingAuthorization, bool, error) {
	pending, ok, err := PeekPending(ctx, store, relayID)
	if err != nil || !ok {
		return PendingAuthorization{}, false, err
	}
	if err := store.Delete(ctx, pendingKeyPrefix+relayID); err != nil {
		return PendingAuthorization{}, false, fmt.Errorf("consume pending authorization: %w", err)
	}
	return pending, true, nil
}

// RememberIdentity caches a resolved identity snapshot for a day. Failures
// here never abort a flow; the cache is observability surface only.
func RememberIdentity(ctx context.Context, store StateStore, identity UpstreamIdentity, resolvedAt time.Time) error {
	snapshot := IdentitySnapshot{
		ProviderID:  identity.ProviderID,
		Login:       identity.Login,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		ResolvedAt:  resolvedAt,
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal identity snapshot: %w", err)
	}
	return store.Put(ctx, identityKeyPrefix+identity.ProviderID, payload, IdentityTTL)
}

// LookupIdentity returns the cached snapshot for a provider id, if any.
func LookupIdentity(ctx context.Context, store StateStore, providerID string) (IdentitySnapshot, bool, error) {
	payload, ok, err := store.Get(ctx, identityKeyPrefix+providerID)
	if err != nil || !ok {
		return IdentitySnapshot{}, false, err
	}
	var snapshot IdentitySnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return IdentitySnapshot{}, false, fmt.Errorf("decode identity snapshot: %w", err)
	}
	return snapshot, true, nil
}
