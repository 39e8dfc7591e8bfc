package discordid

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{in: "123456789012345", want: true},
		{in: "1234567890123456789", want: true},
		{in: "12345678901234", want: false},
		{in: "12345678901234567890", want: false},
		{in: "12345678901234a", want: false},
		{in: " 123456789012345", want: false},
		{in: "123456789012345 ", want: false},
		{in: "-12345678901234", want: false},
		{in: "", want: false},
		// Would parse to 42 and no longer match its own String form.
		{in: "000000000000042", want: false},
		{in: "0123456789012345", want: false},
		// Matches the digit pattern but overflows int64.
		{in: "9999999999999999999", want: false},
	}

	for _, tc := range cases {
		got, err := Parse("guild_id", tc.in)
		if tc.want {
			if err != nil {
				t.Fatalf("Parse(%q) unexpected err: %v", tc.in, err)
			}
			if got.String() != tc.in {
				t.Fatalf("Parse(%q)=%s want=%s", tc.in, got, tc.in)
			}
			continue
		}
		if err == nil {
			t.Fatalf("Parse(%q) expected error", tc.in)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q) err=%v want ErrInvalid", tc.in, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "guild_id" {
			t.Fatalf("Parse(%q) expected ValidationError naming guild_id, got %v", tc.in, err)
		}
	}
}

func TestParse_GeneratedSnowflakes(t *testing.T) {
	t.Parallel()

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	for i := 0; i < 50; i++ {
		id := node.Generate()
		got, err := Parse("user_id", id.String())
		if err != nil {
			t.Fatalf("Parse(%s): %v", id, err)
		}
		if got.Snowflake() != id {
			t.Fatalf("round trip mismatch: got=%d want=%d", got, id)
		}
	}
}

func TestCreatedAt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{in: "175928847299117063", want: time.Date(2016, 4, 30, 11, 18, 25, 796e6, time.UTC)},
		{in: "123456789012345", want: time.Date(2015, 1, 1, 8, 10, 34, 392e6, time.UTC)},
	}
	for _, tc := range cases {
		id, err := Parse("guild_id", tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got := id.CreatedAt(); !got.Equal(tc.want) {
			t.Fatalf("CreatedAt(%s) got=%s want=%s", tc.in, got, tc.want)
		}
	}
}

func TestFromJSON_StringAndNumber(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`"1234567890123456789"`, `1234567890123456789`} {
		got, err := FromJSON("guild_id", []byte(raw))
		if err != nil {
			t.Fatalf("FromJSON(%s): %v", raw, err)
		}
		if got.Int64() != 1234567890123456789 {
			t.Fatalf("FromJSON(%s)=%d", raw, got)
		}
	}

	for _, raw := range []string{`null`, `true`, `"abc"`, `12.5`, `{}`} {
		if _, err := FromJSON("user_id", []byte(raw)); err == nil {
			t.Fatalf("FromJSON(%s) expected error", raw)
		}
	}
}

func TestID_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	var v struct {
		GuildID ID `json:"guild_id"`
	}
	if err := json.Unmarshal([]byte(`{"guild_id": 123456789012345}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"guild_id":"123456789012345"`) {
		t.Fatalf("unexpected encoding: %s", b)
	}

	if err := json.Unmarshal([]byte(`{"guild_id": "1"}`), &v); err == nil {
		t.Fatalf("expected short id to be rejected")
	}
}
