// Package main provides a CI-friendly smoke test for the guildgate moderation feed.
//
// It validates:
//   - admin-authenticated handshake + subprotocol selection
//   - feed.hello session establishment
//   - guild filters via feed.subscribe
//   - grant/ban/unban/revoke over the admin API fan out as events
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "guildgate.moderation.v1"
	version      = 1
	maxReadBytes = 1 << 20 // 1MiB

	typeHello     = "feed.hello"
	typeSubscribe = "feed.subscribe"
	typeError     = "feed.error"
)

type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type eventPayload struct {
	GuildID string         `json:"guild_id"`
	UserID  string         `json:"user_id,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	sessionID string

	inbox chan envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "guildgate base URL")
		token   = flag.String("token", os.Getenv("GUILDGATE_API_TOKEN"), "admin shared secret")
		guildID = flag.String("guild", "", "guild ID to exercise (default: derived from time)")
		userID  = flag.String("user", "123456789012345678", "acting user ID")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url: %q", *baseURL)
	}
	if strings.TrimSpace(*token) == "" {
		fatalf("missing -token (or GUILDGATE_API_TOKEN)")
	}
	gid := *guildID
	if gid == "" {
		gid = fmt.Sprintf("%d", 100000000000000000+time.Now().UnixNano()%800000000000000000)
	}
	other := "999999999999999999"
	if gid == other {
		other = "999999999999999998"
	}

	root := context.Background()
	feedURL := wsURL(base) + "/ws/moderation"

	a := mustConnect(root, "A", feedURL, *token, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", feedURL, *token, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s guild=%s\n", a.sessionID, b.sessionID, gid)
	}

	// B only wants a guild nobody touches.
	mustWrite(root, b.conn, envelope{
		V:       version,
		Type:    typeSubscribe,
		ID:      "B-subscribe",
		TS:      time.Now().UTC(),
		Payload: mustJSON(map[string][]string{"guild_ids": {other}}),
	}, *timeout)
	// The subscribe frame has no reply; give the server a moment to apply it.
	time.Sleep(200 * time.Millisecond)

	api := &adminClient{base: base.String(), token: *token, hc: &http.Client{Timeout: *timeout}}
	body := map[string]any{"user_id": *userID}

	steps := []struct {
		method string
		path   string
		body   any
		want   string
	}{
		{method: http.MethodPost, path: "/api/guilds/" + gid, body: body, want: "guild.granted"},
		{method: http.MethodPut, path: "/api/guilds/" + gid + "/ban", body: map[string]any{"user_id": *userID, "reason": "smoke"}, want: "guild.banned"},
		{method: http.MethodDelete, path: "/api/guilds/" + gid + "/ban", body: body, want: "guild.unbanned"},
		{method: http.MethodDelete, path: "/api/guilds/" + gid, body: body, want: "guild.revoked"},
	}

	for _, st := range steps {
		status := api.mustDo(st.method, st.path, st.body)
		if status != http.StatusOK {
			fatalf("%s %s: status=%d", st.method, st.path, status)
		}
		env := a.mustReadUntilType(root, st.want, *timeout)

		var p eventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal %s payload: %v", st.want, err)
		}
		if p.GuildID != gid {
			fatalf("%s guild_id mismatch: got=%q want=%q", st.want, p.GuildID, gid)
		}
		if p.UserID != *userID {
			fatalf("%s user_id mismatch: got=%q want=%q", st.want, p.UserID, *userID)
		}
		if *verbose {
			fmt.Printf("event: %s id=%s\n", env.Type, env.ID)
		}
	}

	mustAssertSilent(root, b, 1200*time.Millisecond)

	fmt.Printf("OK: A=%s B=%s guild=%s events=%d\n", a.sessionID, b.sessionID, gid, len(steps))
}

func wsURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

type adminClient struct {
	base  string
	token string
	hc    *http.Client
}

func (c *adminClient) mustDo(method, path string, body any) int {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(mustJSON(body))
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func mustConnect(parent context.Context, name, feedURL, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", token)

	conn, resp, err := websocket.Dial(ctx, feedURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	hello := c.mustReadUntilType(parent, typeHello, stepTimeout)

	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(hello.Payload, &p); err != nil {
		fatalf("unmarshal hello payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello missing session_id (%s)", name)
	}
	c.sessionID = p.SessionID

	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if env.V != version || env.Type == "" || env.ID == "" {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: v=%d type=%q id=%q", env.V, env.Type, env.ID):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == typeError {
				var ep errorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustAssertSilent(parent context.Context, c *smokeClient, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			fatalf("filtered session received %q (%s)", env.Type, c.name)
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
