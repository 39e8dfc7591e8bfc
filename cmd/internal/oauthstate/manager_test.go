package oauthstate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"guildgate/cmd/security/token"
)

func fixedNow() time.Time {
	return time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)
}

type countingMetrics struct {
	mu       sync.Mutex
	issued   map[string]int
	consumed map[string]int
	swept    int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{issued: map[string]int{}, consumed: map[string]int{}}
}

func (c *countingMetrics) StateIssued(it string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[it]++
}

func (c *countingMetrics) StateConsumed(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed[result]++
}

func (c *countingMetrics) SweepDeleted(_ string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swept += n
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *InMemoryStore, *countingMetrics) {
	t.Helper()
	store := NewInMemoryStore()
	met := newCountingMetrics()
	m, err := NewManager(store, append([]Option{WithMetrics(met)}, opts...)...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, store, met
}

func TestIssueConsume_SingleUse(t *testing.T) {
	t.Parallel()

	m, store, met := newTestManager(t)
	ctx := context.Background()
	now := fixedNow()

	key, tok, err := m.Issue(ctx, now, GuildInstall)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if key == "" {
		t.Fatalf("expected key")
	}
	if !tok.ExpiresAt.Equal(now.Add(60 * time.Second)) {
		t.Fatalf("expires_at got=%v want=%v", tok.ExpiresAt, now.Add(60*time.Second))
	}
	if store.Len() != 1 {
		t.Fatalf("rows got=%d want=1", store.Len())
	}

	got, err := m.Consume(ctx, now.Add(time.Second), key)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.IntegrationType != GuildInstall {
		t.Fatalf("integration type got=%d want=%d", got.IntegrationType, GuildInstall)
	}
	if store.Len() != 0 {
		t.Fatalf("token row must be gone after consume")
	}

	if _, err := m.Consume(ctx, now.Add(2*time.Second), key); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second consume got=%v want=%v", err, ErrInvalidState)
	}
	if met.consumed["ok"] != 1 || met.consumed["invalid"] != 1 || met.issued["guild"] != 1 {
		t.Fatalf("metrics got issued=%v consumed=%v", met.issued, met.consumed)
	}
}

func TestIssue_UserInstall(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ctx := context.Background()

	key, _, err := m.Issue(ctx, fixedNow(), UserInstall)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := m.Consume(ctx, fixedNow(), key)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.IntegrationType != UserInstall {
		t.Fatalf("integration type got=%s want=%s", got.IntegrationType, UserInstall)
	}

	if _, _, err := m.Issue(ctx, fixedNow(), IntegrationType(7)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown integration got=%v want=%v", err, ErrInvalidInput)
	}
}

func TestConsume_UnknownAndMalformed(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for _, key := range []string{"", "   ", "never-issued", strings.Repeat("x", maxKeyLen+1)} {
		if _, err := m.Consume(ctx, fixedNow(), key); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("consume(%q) got=%v want=%v", key, err, ErrInvalidState)
		}
	}
}

func TestConsume_ExpiredIsRejectedAndDeleted(t *testing.T) {
	t.Parallel()

	m, store, met := newTestManager(t, WithTTL(10*time.Second))
	ctx := context.Background()
	now := fixedNow()

	key, _, err := m.Issue(ctx, now, GuildInstall)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Consume(ctx, now.Add(10*time.Second), key); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired consume got=%v want=%v", err, ErrInvalidState)
	}
	if store.Len() != 0 {
		t.Fatalf("expired row must be deleted on consume")
	}
	if met.consumed["expired"] != 1 {
		t.Fatalf("expected expired metric, got %v", met.consumed)
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()

	m, store, met := newTestManager(t)
	ctx := context.Background()
	now := fixedNow()

	if _, _, err := m.Issue(ctx, now, GuildInstall); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := m.Issue(ctx, now.Add(50*time.Second), GuildInstall); err != nil {
		t.Fatalf("issue: %v", err)
	}

	n, err := m.Sweep(ctx, now.Add(61*time.Second))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || store.Len() != 1 {
		t.Fatalf("sweep deleted=%d remaining=%d want 1/1", n, store.Len())
	}
	if met.swept != 1 {
		t.Fatalf("sweep metric got=%d", met.swept)
	}
}

func TestConsume_ConcurrentReplay(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ctx := context.Background()
	now := fixedNow()

	key, _, err := m.Issue(ctx, now, GuildInstall)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Consume(ctx, now, key); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("successful consumes got=%d want=1", wins.Load())
	}
}

func TestStoredHashNotPlaintext(t *testing.T) {
	t.Parallel()

	hasher, err := token.NewHasher(strings.Repeat("k", token.MinHMACKeyBytes), true)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	m, store, _ := newTestManager(t, WithHasher(hasher))

	key, _, err := m.Issue(context.Background(), fixedNow(), GuildInstall)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.rows[key]; ok {
		t.Fatalf("plaintext key must not be stored")
	}
	if _, ok := store.rows[hasher.Hash(key)]; !ok {
		t.Fatalf("expected row under keyed hash")
	}
}

func TestNewManager_Options(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil store got=%v", err)
	}
	store := NewInMemoryStore()
	if _, err := NewManager(store, WithTTL(0)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero ttl got=%v", err)
	}
	if _, err := NewManager(store, WithEntropyBytes(4)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("low entropy got=%v", err)
	}
	m, err := NewManager(store, WithTTL(5*time.Second))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.TTL() != 5*time.Second {
		t.Fatalf("ttl got=%v", m.TTL())
	}
}
