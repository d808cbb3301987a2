package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Producer: "tts-bot-shard-0",
		JTI:      "jti-1",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Producer != "tts-bot-shard-0" || claims.JTI != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Producer: "tts-bot",
		JTI:      "jti-1",
		Exp:      time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), Claims{Producer: "a", JTI: "j", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	cases := map[string]struct {
		secret []byte
		token  string
	}{
		"wrong secret":  {[]byte("other"), issued},
		"empty secret":  {nil, issued},
		"no signature":  {[]byte("secret"), "abc"},
		"extra segment": {[]byte("secret"), issued + ".x"},
	}
	for name, tc := range cases {
		if _, err := ParseToken(tc.secret, tc.token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := IssueToken(nil, Claims{}); err == nil {
		t.Error("expected IssueToken to reject an empty secret")
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := BearerToken("Bearer abc.def"); !ok || token != "abc.def" {
		t.Errorf("unexpected result %q %v", token, ok)
	}
	if token, ok := BearerToken("bearer   xyz "); !ok || token != "xyz" {
		t.Errorf("unexpected result %q %v", token, ok)
	}
	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer   "} {
		if _, ok := BearerToken(header); ok {
			t.Errorf("expected %q to be rejected", header)
		}
	}
}
