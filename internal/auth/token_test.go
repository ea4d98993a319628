package auth_test

import (
	"testing"
	"time"

	"cryptalk/internal/auth"
	"cryptalk/internal/presence"
)

func TestIssueAndParseToken(t *testing.T) {
	id := presence.Identity{UserID: "u1", DisplayName: "alice@example.com", PublicKey: "pk-alice"}

	token, err := auth.IssueToken("secret", time.Hour, id)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	got, err := auth.ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if got != id {
		t.Errorf("identity did not round-trip: got %+v, want %+v", got, id)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	id := presence.Identity{UserID: "u1", DisplayName: "alice@example.com"}
	token, err := auth.IssueToken("secret", time.Hour, id)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := auth.ParseToken("other-secret", token); err == nil {
		t.Error("expected validation failure for wrong secret")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	id := presence.Identity{UserID: "u1"}
	token, err := auth.IssueToken("secret", -time.Minute, id)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := auth.ParseToken("secret", token); err == nil {
		t.Error("expected validation failure for expired token")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := auth.ParseToken("secret", "not-a-token"); err == nil {
		t.Error("expected failure for malformed token")
	}
}
