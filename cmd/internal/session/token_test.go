package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestStaticVerifier(t *testing.T) {
	t.Parallel()

	v := NewStaticVerifier(map[string]string{
		"tok-alice": "alice",
		"  ":        "ignored",
		"tok-empty": "",
	})
	v.Add("tok-bob", "bob")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	claims, err := v.Verify("tok-alice", now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "alice" {
		t.Fatalf("UserID=%q want=alice", claims.UserID)
	}

	if claims, err := v.Verify("tok-bob", now); err != nil || claims.UserID != "bob" {
		t.Fatalf("added token: claims=%+v err=%v", claims, err)
	}

	for _, tok := range []string{"tok-empty", "unknown", ""} {
		if _, err := v.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: err=%v want=ErrInvalidToken", tok, err)
		}
	}
}

func signTestToken(t *testing.T, key paseto.V4AsymmetricSecretKey, issuer, uid string, iat, exp time.Time) string {
	t.Helper()

	token := paseto.NewToken()
	token.SetIssuer(issuer)
	token.SetIssuedAt(iat)
	token.SetNotBefore(iat)
	token.SetExpiration(exp)
	if uid != "" {
		token.SetString("uid", uid)
	}
	return token.V4Sign(key, nil)
}

func TestPasetoV4PublicVerifier(t *testing.T) {
	t.Parallel()

	key := paseto.NewV4AsymmetricSecretKey()
	v, err := NewPasetoV4PublicVerifier(Config{
		Issuer:       "identity.test",
		PublicKeyHex: key.Public().ExportHex(),
		ClockSkew:    30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	now := time.Now().UTC()

	t.Run("valid token", func(t *testing.T) {
		tok := signTestToken(t, key, "identity.test", "alice", now.Add(-time.Minute), now.Add(time.Hour))
		claims, err := v.Verify(tok, now)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if claims.UserID != "alice" || claims.Issuer != "identity.test" {
			t.Fatalf("claims=%+v", claims)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		tok := signTestToken(t, key, "someone.else", "alice", now.Add(-time.Minute), now.Add(time.Hour))
		if _, err := v.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want=ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		tok := signTestToken(t, key, "identity.test", "alice", now.Add(-2*time.Hour), now.Add(-time.Hour))
		if _, err := v.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want=ErrInvalidToken", err)
		}
	})

	t.Run("missing uid claim", func(t *testing.T) {
		tok := signTestToken(t, key, "identity.test", "", now.Add(-time.Minute), now.Add(time.Hour))
		if _, err := v.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want=ErrInvalidToken", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := paseto.NewV4AsymmetricSecretKey()
		tok := signTestToken(t, other, "identity.test", "alice", now.Add(-time.Minute), now.Add(time.Hour))
		if _, err := v.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want=ErrInvalidToken", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := v.Verify("v4.public.not-a-token", now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want=ErrInvalidToken", err)
		}
	})
}

func TestPasetoV4PublicVerifier_Config(t *testing.T) {
	t.Parallel()

	key := paseto.NewV4AsymmetricSecretKey()

	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing issuer", cfg: Config{PublicKeyHex: key.Public().ExportHex()}},
		{name: "missing key", cfg: Config{Issuer: "identity.test"}},
		{name: "bad key hex", cfg: Config{Issuer: "identity.test", PublicKeyHex: "zz"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPasetoV4PublicVerifier(tc.cfg); !errors.Is(err, ErrConfig) {
				t.Fatalf("err=%v want=ErrConfig", err)
			}
		})
	}
}
