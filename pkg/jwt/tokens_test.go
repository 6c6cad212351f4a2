package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseRoundTrip(t *testing.T) {
	token, err := GenerateToken("user-123", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token, "test-secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Fatalf("unexpected user id: %q", claims.UserID)
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("unexpected expiry window: %v", remaining)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("user-123", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "other-secret"); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken("user-123", "test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err = Parse(token, "test-secret")
	if err == nil {
		t.Fatal("expected expiry failure")
	}
	if !errors.Is(err, jwtlib.ErrTokenExpired) {
		t.Fatalf("expected token expired error, got %v", err)
	}
}

func TestParseRejectsMalformedToken(t *testing.T) {
	if _, err := Parse("not.a.token", "test-secret"); err == nil {
		t.Fatal("expected malformed token failure")
	}
	if _, err := Parse("", "test-secret"); err == nil {
		t.Fatal("expected empty token failure")
	}
}
