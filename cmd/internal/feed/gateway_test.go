package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"guildgate/cmd/internal/discordid"
	"guildgate/cmd/internal/guild"

	"github.com/coder/websocket"
)

func dialFeed(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   header,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func writeFrame(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	b, _ := json.Marshal(env)
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub clients got=%d want=%d", h.Len(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGateway_HelloEventsAndSubscribe(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	gw := NewGateway(discardLogger(), hub, Config{})
	srv := httptest.NewServer(gw)
	defer srv.Close()

	conn := dialFeed(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")

	hello := readEnvelope(t, conn)
	if hello.Type != TypeHello {
		t.Fatalf("first frame got=%q want=%q", hello.Type, TypeHello)
	}
	waitForClients(t, hub, 1)

	gid, _ := discordid.Parse("guild_id", "123456789012345")
	other, _ := discordid.Parse("guild_id", "543210987654321")

	hub.GuildEvent(context.Background(), guild.Event{Action: guild.ActionGranted, GuildID: gid, At: time.Now().UTC()})
	if env := readEnvelope(t, conn); env.Type != guild.ActionGranted {
		t.Fatalf("event got=%q", env.Type)
	}

	sub, _ := json.Marshal(SubscribePayload{GuildIDs: []string{other.String()}})
	writeFrame(t, conn, Envelope{V: Version, Type: TypeSubscribe, Payload: sub})

	// The subscribe frame is processed asynchronously; poll until the filter applies.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		var c *Client
		for _, cl := range hub.clients {
			c = cl
		}
		hub.mu.RUnlock()
		if c != nil && !c.Wants(gid.String()) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscribe filter never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.GuildEvent(context.Background(), guild.Event{Action: guild.ActionRevoked, GuildID: gid, At: time.Now().UTC()})
	hub.GuildEvent(context.Background(), guild.Event{Action: guild.ActionUnbanned, GuildID: other, At: time.Now().UTC()})
	if env := readEnvelope(t, conn); env.Type != guild.ActionUnbanned {
		t.Fatalf("filtered event got=%q want=%q", env.Type, guild.ActionUnbanned)
	}
}

func TestGateway_BadSubscribeReportsError(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	srv := httptest.NewServer(NewGateway(discardLogger(), hub, Config{}))
	defer srv.Close()

	conn := dialFeed(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")
	_ = readEnvelope(t, conn)

	sub, _ := json.Marshal(SubscribePayload{GuildIDs: []string{"12"}})
	writeFrame(t, conn, Envelope{V: Version, Type: TypeSubscribe, Payload: sub})

	env := readEnvelope(t, conn)
	if env.Type != TypeError {
		t.Fatalf("got=%q want=%q", env.Type, TypeError)
	}
	var p ErrorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if p.Code != "bad_request" || !strings.Contains(p.Message, "guild_ids") {
		t.Fatalf("error payload got=%+v", p)
	}
}

func TestGateway_SubscribeBudgetKeepsConnection(t *testing.T) {
	hub := NewHub(discardLogger(), nil)
	srv := httptest.NewServer(NewGateway(discardLogger(), hub, Config{RateSubscribes: 1}))
	defer srv.Close()

	conn := dialFeed(t, srv, nil)
	defer conn.Close(websocket.StatusNormalClosure, "")
	_ = readEnvelope(t, conn)

	sub, _ := json.Marshal(SubscribePayload{GuildIDs: []string{"123456789012345"}})
	writeFrame(t, conn, Envelope{V: Version, Type: TypeSubscribe, Payload: sub})
	writeFrame(t, conn, Envelope{V: Version, Type: TypeSubscribe, Payload: sub})

	env := readEnvelope(t, conn)
	if env.Type != TypeError {
		t.Fatalf("got=%q want=%q", env.Type, TypeError)
	}
	var p ErrorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if p.Code != "rate_limited" {
		t.Fatalf("error payload got=%+v", p)
	}

	// The session survives: a bad frame still gets a reply.
	writeFrame(t, conn, Envelope{V: Version, Type: "bogus"})
	env = readEnvelope(t, conn)
	_ = json.Unmarshal(env.Payload, &p)
	if env.Type != TypeError || p.Code != "bad_request" {
		t.Fatalf("after refusal got=%q %+v", env.Type, p)
	}
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	gw := NewGateway(discardLogger(), nil, Config{AllowedOrigins: []string{"https://admin.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status got=%d want=403", rec.Code)
	}

	if err := gw.enforceOrigin(withOrigin("https://admin.example.com:8443")); err != nil {
		t.Fatalf("allowed host with port rejected: %v", err)
	}
	if err := gw.enforceOrigin(withOrigin("")); err != nil {
		t.Fatalf("missing origin must be allowed for non-browser clients: %v", err)
	}
}

func withOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}
