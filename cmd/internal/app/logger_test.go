package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSONDefault(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "info", "", false)
	log.Info("server.start", "addr", "127.0.0.1:8080")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "server.start" || rec["addr"] != "127.0.0.1:8080" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLogger_PrettyWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "debug", "pretty", false)
	log.Info("http.request", "method", "get", "status", 404, "status_class", "4xx", "duration_ms", int64(12), "path", "/api/guilds/1")

	line := buf.String()
	for _, want := range []string{"lvl=[INFO]", "msg=http.request", "method=GET", "status=404", "class=4xx", "duration=12ms", "path=/api/guilds/1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("pretty line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("color disabled but ANSI codes present: %q", line)
	}
}

func TestNewLogger_PrettyLeadsWithEventSummary(t *testing.T) {
	cases := []struct {
		name  string
		log   func(*slog.Logger)
		order []string
	}{
		{
			name: "sweep",
			log: func(l *slog.Logger) {
				l.With("job", "blacklist").Info("sweep.blacklist.deleted", "duration_ms", int64(3), "deleted", 2)
			},
			order: []string{"msg=sweep.blacklist.deleted", "job=blacklist", "deleted=2", "duration=3ms"},
		},
		{
			name: "callback",
			log: func(l *slog.Logger) {
				l.Info("callback.refused", "remote", "10.0.0.1:5000", "decision", "blacklisted", "guild_id", "123456789012345")
			},
			order: []string{"msg=callback.refused", "guild_id=123456789012345", "decision=blacklisted", "remote=10.0.0.1:5000"},
		},
		{
			name: "other events keep emission order",
			log: func(l *slog.Logger) {
				l.Info("feed.subscribe", "session_id", "s1", "guilds", 2)
			},
			order: []string{"msg=feed.subscribe", "session_id=s1", "guilds=2"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.log(newLogger(&buf, "debug", "pretty", false))

			line := buf.String()
			last := -1
			for _, want := range tc.order {
				i := strings.Index(line, want)
				if i < 0 {
					t.Fatalf("pretty line %q missing %q", line, want)
				}
				if i < last {
					t.Fatalf("pretty line %q: %q out of order", line, want)
				}
				last = i
			}
		})
	}
}

func TestNewLogger_PrettyDomainColors(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "info", "pretty", true)
	log.Info("callback.refused", "guild_id", "123456789012345", "decision", "blacklisted")
	log.Info("sweep.states.deleted", "job", "states", "deleted", 0)

	out := buf.String()
	for _, want := range []string{
		"decision=" + ansiRed + "blacklisted" + ansiReset,
		"guild_id=" + ansiCyan + "123456789012345" + ansiReset,
		"job=" + ansiMagenta + "states" + ansiReset,
		"deleted=" + ansiDim + "0" + ansiReset,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("colored output %q missing %q", out, want)
		}
	}
}
