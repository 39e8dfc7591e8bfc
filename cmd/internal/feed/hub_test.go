package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/guild"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countMetrics struct {
	clients atomic.Int64
	dropped atomic.Int64
}

func (m *countMetrics) FeedClientsDelta(d int) { m.clients.Add(int64(d)) }
func (m *countMetrics) FeedDropped()           { m.dropped.Add(1) }

func TestHub_GuildEventFanout(t *testing.T) {
	met := &countMetrics{}
	h := NewHub(discardLogger(), met)

	a := NewClient("a", 8)
	b := NewClient("b", 8)
	h.Join(a)
	h.Join(b)
	if met.clients.Load() != 2 || h.Len() != 2 {
		t.Fatalf("clients got metric=%d len=%d", met.clients.Load(), h.Len())
	}

	gid, _ := discordid.Parse("guild_id", "123456789012345")
	uid, _ := discordid.Parse("user_id", "900000000000009")
	at := time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

	h.GuildEvent(context.Background(), guild.Event{
		ID:      "01HZX0000000000000000000AA",
		Action:  guild.ActionBanned,
		GuildID: gid,
		UserID:  uid,
		At:      at,
		Meta:    map[string]any{"reason": "spam"},
	})

	for _, c := range []*Client{a, b} {
		select {
		case env := <-c.Send:
			if env.Type != guild.ActionBanned || env.ID != "01HZX0000000000000000000AA" || !env.TS.Equal(at) {
				t.Fatalf("envelope got=%+v", env)
			}
			var p EventPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if p.GuildID != "123456789012345" || p.UserID != "900000000000009" || p.Meta["reason"] != "spam" {
				t.Fatalf("payload got=%+v", p)
			}
		default:
			t.Fatalf("client %s got nothing", c.SessionID)
		}
	}

	h.Leave("a")
	h.Leave("a")
	if met.clients.Load() != 1 {
		t.Fatalf("clients after leave got=%d want=1", met.clients.Load())
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("left client must be closed")
	}
}

func TestHub_FilterAndDrop(t *testing.T) {
	met := &countMetrics{}
	h := NewHub(discardLogger(), met)

	filtered := NewClient("f", 8)
	filtered.SetFilter([]string{"111111111111111"})
	full := NewClient("full", 1)
	h.Join(filtered)
	h.Join(full)

	h.Broadcast("222222222222222", Envelope{Type: "x"})
	h.Broadcast("111111111111111", Envelope{Type: "y"})

	if len(filtered.Send) != 1 {
		t.Fatalf("filtered client queue got=%d want=1", len(filtered.Send))
	}
	if env := <-filtered.Send; env.Type != "y" {
		t.Fatalf("filtered client got type=%q", env.Type)
	}
	if met.dropped.Load() != 1 {
		t.Fatalf("dropped got=%d want=1", met.dropped.Load())
	}

	filtered.SetFilter(nil)
	if !filtered.Wants("222222222222222") {
		t.Fatalf("cleared filter must accept everything")
	}
}

func TestFrameBudget(t *testing.T) {
	b := newFrameBudget(3, 2, time.Second)
	now := time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

	if !b.Frame(now) || !b.Frame(now.Add(100*time.Millisecond)) || !b.Frame(now.Add(150*time.Millisecond)) {
		t.Fatalf("first three frames must pass")
	}
	if b.Frame(now.Add(200 * time.Millisecond)) {
		t.Fatalf("fourth frame within window must be refused")
	}
	if !b.Frame(now.Add(1100 * time.Millisecond)) {
		t.Fatalf("frame after window must pass")
	}

	if !b.Subscribe(now) || !b.Subscribe(now.Add(10*time.Millisecond)) {
		t.Fatalf("first two subscribes must pass")
	}
	if b.Subscribe(now.Add(20 * time.Millisecond)) {
		t.Fatalf("third subscribe within window must be refused")
	}
	if !b.Subscribe(now.Add(1500 * time.Millisecond)) {
		t.Fatalf("subscribe after window must pass")
	}
}

func TestFrameBudget_Defaults(t *testing.T) {
	b := newFrameBudget(0, 50, 0)
	if b.maxFrames != rateLimitEvents || b.window != rateLimitWindow {
		t.Fatalf("defaults got=%d/%s", b.maxFrames, b.window)
	}
	if b.maxSubs != rateLimitEvents {
		t.Fatalf("subscribe budget must not exceed frame budget, got=%d", b.maxSubs)
	}
}
