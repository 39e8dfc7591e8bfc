package secret

import (
	"errors"
	"testing"
)

// Cheap parameters keep the suite fast; bounds are checked against DefaultParams.
func testParams() Params {
	return Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestVerifier_Plain(t *testing.T) {
	v, err := NewVerifier("  s3cret-token  ")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if v.Hashed() {
		t.Fatalf("expected plain verifier")
	}
	if !v.Verify("s3cret-token") {
		t.Fatalf("expected match")
	}
	for _, bad := range []string{"", "s3cret", "s3cret-token ", "S3CRET-TOKEN"} {
		if v.Verify(bad) {
			t.Fatalf("unexpected match for %q", bad)
		}
	}
}

func TestVerifier_Argon2id(t *testing.T) {
	h, err := Hash("admin-secret", testParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !IsHash(h) {
		t.Fatalf("expected encoded hash, got %q", h)
	}

	v, err := NewVerifier(h)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if !v.Hashed() {
		t.Fatalf("expected hashed verifier")
	}
	if v.Verify("wrong") {
		t.Fatalf("unexpected match")
	}
	if !v.Verify("admin-secret") {
		t.Fatalf("expected match")
	}
	// Served from the verified cache.
	if !v.Verify("admin-secret") {
		t.Fatalf("expected cached match")
	}
}

func TestNewVerifier_Rejects(t *testing.T) {
	if _, err := NewVerifier(" "); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("blank got=%v want=%v", err, ErrEmptySecret)
	}
	if _, err := NewVerifier("$argon2id$v=19$garbage"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("malformed got=%v want=%v", err, ErrInvalidHash)
	}
	if _, err := Hash("", testParams()); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("empty hash got=%v want=%v", err, ErrEmptySecret)
	}
}

func TestVerify_RefusesExcessiveCost(t *testing.T) {
	p := testParams()
	p.Iterations = DefaultParams().Iterations*2 + 1
	h, err := Hash("x", p)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := verifyHash(h, "x", DefaultParams())
	if !errors.Is(err, ErrInvalidHash) || ok {
		t.Fatalf("got ok=%v err=%v want ErrInvalidHash", ok, err)
	}
}

func TestCheckStrength(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want error
	}{
		{in: "admin-shared-secret", want: nil},
		{in: "short", want: ErrSecretTooShort},
		{in: string(make([]byte, MaxLength+1)), want: ErrSecretTooLong},
		{in: "aaaaaaaaaaaaaaaaaaaa", want: ErrWeakSecret},
		{in: "12345678901234567890", want: ErrWeakSecret},
		{in: "password1234567890", want: ErrWeakSecret},
		{in: "qwertyqwerty", want: ErrSecretTooShort},
		{in: "changemechangeme", want: ErrWeakSecret},
	}

	for _, tc := range cases {
		if err := CheckStrength(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("CheckStrength(%q)=%v want=%v", tc.in, err, tc.want)
		}
	}
}
