package jwt

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func hsManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateAndParseAccess(t *testing.T) {
	m := hsManager(t)

	tok, err := m.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	sub, err := m.ParseAccess(tok, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if sub != "subject-1" {
		t.Fatalf("subject = %q, want subject-1", sub)
	}
}

func TestCreateAccessDeterministic(t *testing.T) {
	m := hsManager(t)

	a, err := m.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	b, err := m.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if a != b {
		t.Fatal("same inputs produced different tokens")
	}
}

func TestParseAccessExpired(t *testing.T) {
	m := hsManager(t)

	tok, err := m.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	_, err = m.ParseAccess(tok, testNow.Add(16*time.Minute))
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestParseAccessTamperedSignature(t *testing.T) {
	m := hsManager(t)

	tok, err := m.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	// Flip one byte of the signature segment.
	i := strings.LastIndex(tok, ".") + 1
	mutated := tok[:i] + flipChar(tok[i:])
	_, err = m.ParseAccess(mutated, testNow)
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}
}

func TestParseAccessMalformed(t *testing.T) {
	m := hsManager(t)

	for _, tok := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := m.ParseAccess(tok, testNow); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseAccess(%q) = %v, want ErrMalformed", tok, err)
		}
	}
}

func TestParseAccessWrongIssuer(t *testing.T) {
	issuerA := hsManager(t)
	issuerB, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "someone-else",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	tok, err := issuerB.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := issuerA.ParseAccess(tok, testNow); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestEd25519KidRotation(t *testing.T) {
	pubOld, privOld, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pubNew, privNew, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	verifyKeys := map[string][]byte{
		"2026-01": pubOld,
		"2026-02": pubNew,
	}

	oldSigner, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    privOld,
		KeyID:         "2026-01",
		VerifyKeys:    verifyKeys,
	})
	if err != nil {
		t.Fatalf("NewManager old: %v", err)
	}
	newSigner, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    privNew,
		KeyID:         "2026-02",
		VerifyKeys:    verifyKeys,
	})
	if err != nil {
		t.Fatalf("NewManager new: %v", err)
	}

	// Tokens from the previous signer stay verifiable after the swap.
	tok, err := oldSigner.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	sub, err := newSigner.ParseAccess(tok, testNow)
	if err != nil {
		t.Fatalf("ParseAccess via kid: %v", err)
	}
	if sub != "subject-1" {
		t.Fatalf("subject = %q, want subject-1", sub)
	}
}

func TestEd25519UnknownKidRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	signer, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		KeyID:         "rogue",
	})
	if err != nil {
		t.Fatalf("NewManager signer: %v", err)
	}
	verifier, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		VerifyKeys:    map[string][]byte{"known": pub},
	})
	if err != nil {
		t.Fatalf("NewManager verifier: %v", err)
	}

	tok, err := signer.CreateAccess("subject-1", testNow)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := verifier.ParseAccess(tok, testNow); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"no hs key", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}},
		{"no ed keys", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}},
		{"huge leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: 10 * time.Minute}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs256"}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg); err == nil {
			t.Fatalf("%s: NewManager accepted invalid config", tc.name)
		}
	}
}

func flipChar(s string) string {
	b := []byte(s)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}
