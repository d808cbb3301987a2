package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"testing"
	"time"
)

func signedRequest(t *testing.T, priv ed25519.PrivateKey, ts string, body []byte) string {
	t.Helper()
	return hex.EncodeToString(ed25519.Sign(priv, append([]byte(ts), body...)))
}

func TestVerifyInteraction(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := ParsePublicKey(hex.EncodeToString(pub))
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	v := NewInteractionVerifier(key, 5*time.Minute)
	v.now = func() time.Time { return now }

	body := []byte(`{"type":1}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := signedRequest(t, priv, ts, body)

	if err := v.Verify(sig, ts, body); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := v.Verify(sig, ts, []byte(`{"type":2}`)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered body: expected ErrInvalidSignature, got %v", err)
	}
	if err := v.Verify("zz", ts, body); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("bad hex: expected ErrInvalidSignature, got %v", err)
	}
	if err := v.Verify("", ts, body); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("missing signature: expected ErrInvalidSignature, got %v", err)
	}

	old := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	if err := v.Verify(signedRequest(t, priv, old, body), old, body); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("stale timestamp: expected ErrInvalidSignature, got %v", err)
	}
}

func TestParsePublicKeyRejectsBadInput(t *testing.T) {
	for _, value := range []string{"", "nothex", "abcd"} {
		if _, err := ParsePublicKey(value); err == nil {
			t.Errorf("expected %q to be rejected", value)
		}
	}
}
