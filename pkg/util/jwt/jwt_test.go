package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestParseTokenIdentityFallbacks(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"user_id", jwt.MapClaims{"user_id": "u1"}, "u1"},
		{"id", jwt.MapClaims{"id": "u2"}, "u2"},
		{"userId", jwt.MapClaims{"userId": "u3"}, "u3"},
		{"sub", jwt.MapClaims{"sub": "u4"}, "u4"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			claims, err := ParseToken(sign(t, c.claims), now)
			if err != nil {
				t.Fatalf("ParseToken: %v", err)
			}
			if claims.Identity() != c.want {
				t.Fatalf("identity = %q, want %q", claims.Identity(), c.want)
			}
		})
	}
}

func TestParseTokenExpired(t *testing.T) {
	now := time.Now()
	token := sign(t, jwt.MapClaims{"id": "u1", "exp": now.Add(-time.Minute).Unix()})
	if _, err := ParseToken(token, now); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestParseTokenWithoutIdentity(t *testing.T) {
	token := sign(t, jwt.MapClaims{"role": "user"})
	if _, err := ParseToken(token, time.Now()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("err = %v, want ErrNoIdentity", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("not-a-jwt", time.Now()); err == nil {
		t.Fatalf("expected parse error")
	}
}
