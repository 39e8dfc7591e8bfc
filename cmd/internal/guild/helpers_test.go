package guild

import (
	"context"
	"sync"
	"testing"
	"time"

	"guildgate/cmd/internal/discordid"

	"github.com/bwmarrin/snowflake"
)

var (
	testNodeOnce sync.Once
	testNode     *snowflake.Node
)

func newTestID(t *testing.T) discordid.ID {
	t.Helper()
	testNodeOnce.Do(func() {
		n, err := snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
		testNode = n
	})
	id, err := discordid.Parse("test_id", testNode.Generate().String())
	if err != nil {
		t.Fatalf("generated snowflake rejected: %v", err)
	}
	return id
}

func mustID(t *testing.T, raw string) discordid.ID {
	t.Helper()
	id, err := discordid.Parse("guild_id", raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return id
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) GuildEvent(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

type recordingMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
	ops       map[string]int
	swept     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		decisions: make(map[string]int),
		ops:       make(map[string]int),
		swept:     make(map[string]int),
	}
}

func (m *recordingMetrics) AdmissionDecision(d string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d]++
}

func (m *recordingMetrics) LedgerOp(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op+"/"+result]++
}

func (m *recordingMetrics) SweepDeleted(table string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept[table] += n
}

type fixture struct {
	store    *InMemoryStore
	engine   *Engine
	ledger   *Ledger
	observer *recordingObserver
	metrics  *recordingMetrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	store := NewInMemoryStore()
	obs := &recordingObserver{}
	met := newRecordingMetrics()

	engine, err := NewEngine(store, WithObserver(obs), WithMetrics(met))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ledger, err := NewLedger(store, WithObserver(obs), WithMetrics(met))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return fixture{store: store, engine: engine, ledger: ledger, observer: obs, metrics: met}
}
