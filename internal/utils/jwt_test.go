package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-testing"

func init() {
	SetJWTSecret(testSecret)
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken(42, "maria", "manager", 2)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Username != "maria" || claims.Role != "manager" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != "perfsentry" {
		t.Errorf("Issuer = %q, want perfsentry", claims.Issuer)
	}
	if d := time.Until(claims.ExpiresAt.Time) - 2*time.Hour; d < -time.Minute || d > time.Minute {
		t.Errorf("expiry off by %v", d)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	SetJWTSecret("other-secret")
	foreign, _ := GenerateToken(1, "sam", "employee", 1)
	SetJWTSecret(testSecret)

	expired, _ := GenerateToken(1, "sam", "employee", -1)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"bad signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.e30.c2lnbmF0dXJl"},
		{"signed with another secret", foreign},
		{"expired", expired},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token); err == nil {
				t.Errorf("ParseToken() accepted %s token", tt.name)
			}
		})
	}
}

func TestSetJWTSecret_ChangesSignature(t *testing.T) {
	defer SetJWTSecret(testSecret)

	SetJWTSecret("first")
	a, _ := GenerateToken(1, "sam", "employee", 1)
	SetJWTSecret("second")
	b, _ := GenerateToken(1, "sam", "employee", 1)

	if a == b {
		t.Error("tokens signed with different secrets should differ")
	}
}
