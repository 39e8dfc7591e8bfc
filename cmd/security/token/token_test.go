package token

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewHasher(t *testing.T) {
	long := strings.Repeat("k", MinHMACKeyBytes)

	cases := []struct {
		name    string
		secret  string
		require bool
		wantErr error
		hmac    bool
	}{
		{name: "blank optional", secret: "  "},
		{name: "blank required", secret: "", require: true, wantErr: ErrHMACKeyMissing},
		{name: "short required", secret: "short", require: true, wantErr: ErrHMACKeyTooShort},
		{name: "short optional", secret: "short", hmac: true},
		{name: "long required", secret: long, require: true, hmac: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHasher(tc.secret, tc.require)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err got=%v want=%v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if h.HMAC() != tc.hmac {
				t.Fatalf("HMAC() got=%v want=%v", h.HMAC(), tc.hmac)
			}
		})
	}
}

func TestHasher_Hash(t *testing.T) {
	plain, _ := NewHasher("", false)
	keyed, _ := NewHasher(strings.Repeat("k", MinHMACKeyBytes), true)

	a := plain.Hash("state")
	if a != HashSHA256Hex("state") {
		t.Fatalf("plain hasher must be SHA-256")
	}
	b := keyed.Hash("state")
	if a == b {
		t.Fatalf("keyed hash must differ from plain hash")
	}
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("expected 64 hex chars, got %d and %d", len(a), len(b))
	}
	if keyed.Hash("state") != b {
		t.Fatalf("hash must be deterministic")
	}
}

func TestGenerate(t *testing.T) {
	now := time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

	k1, err := Generate(0, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	k2, err := Generate(0, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("keys must be unique")
	}

	rnd, ts, ok := strings.Cut(k1, ".")
	if !ok {
		t.Fatalf("expected random.timestamp form, got %q", k1)
	}
	if len(rnd) != 32 {
		t.Fatalf("random part length got=%d want=32", len(rnd))
	}
	ms, err := strconv.ParseInt(ts, 36, 64)
	if err != nil || ms != now.UnixMilli() {
		t.Fatalf("timestamp part got=%q (%d) want=%d", ts, ms, now.UnixMilli())
	}

	if _, err := Generate(4, now); !errors.Is(err, ErrEntropyTooLow) {
		t.Fatalf("low entropy got=%v want=%v", err, ErrEntropyTooLow)
	}
}
