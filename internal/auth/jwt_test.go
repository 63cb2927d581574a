package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateAndParseJWT(t *testing.T) {
	tenant := uuid.New()
	user := uuid.New()

	tok, err := GenerateJWT("secret", tenant, user, "owner", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseJWT("secret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := claims.TenantID()
	if err != nil || got != tenant {
		t.Errorf("tenant = %v (%v), want %v", got, err, tenant)
	}
	if claims.UserID != user {
		t.Errorf("user = %v, want %v", claims.UserID, user)
	}
	if claims.Role != "owner" {
		t.Errorf("role = %q", claims.Role)
	}
}

func TestParseJWTRejects(t *testing.T) {
	valid, _ := GenerateJWT("secret", uuid.New(), uuid.New(), "owner", time.Hour)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"garbage", "secret", "not-a-token"},
		{"empty", "secret", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}
