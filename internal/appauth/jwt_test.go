package appauth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

func TestGenerateJWT_SignsVerifiableClaims(t *testing.T) {
	key, pemStr := testKeyPEM(t)

	signed, err := GenerateJWT(12345, pemStr)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}))
	if err != nil {
		t.Fatalf("parsing signed JWT: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token should be valid")
	}
	if claims.Issuer != "12345" {
		t.Errorf("issuer: got %q, want %q", claims.Issuer, "12345")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("iat and exp must both be set")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 10*time.Minute {
		t.Errorf("ttl: got %s, want 10m", ttl)
	}
}

func TestGenerateJWT_RejectsGarbageKey(t *testing.T) {
	if _, err := GenerateJWT(1, "not a pem key"); err == nil {
		t.Fatal("expected error for invalid key material")
	}
}

func TestResolvePrivateKey(t *testing.T) {
	_, pemStr := testKeyPEM(t)
	path := filepath.Join(t.TempDir(), "app.pem")
	if err := os.WriteFile(path, []byte(pemStr), 0600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	t.Run("from file", func(t *testing.T) {
		got, err := ResolvePrivateKey(path, "")
		if err != nil {
			t.Fatalf("ResolvePrivateKey failed: %v", err)
		}
		if got != pemStr {
			t.Error("file content mismatch")
		}
	})

	t.Run("from content", func(t *testing.T) {
		got, err := ResolvePrivateKey("", pemStr)
		if err != nil {
			t.Fatalf("ResolvePrivateKey failed: %v", err)
		}
		if got != pemStr {
			t.Error("content mismatch")
		}
	})

	t.Run("both provided", func(t *testing.T) {
		if _, err := ResolvePrivateKey(path, pemStr); err == nil {
			t.Fatal("expected error when both sources are set")
		}
	})

	t.Run("neither provided", func(t *testing.T) {
		if _, err := ResolvePrivateKey("", ""); err == nil {
			t.Fatal("expected error when no source is set")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := ResolvePrivateKey(filepath.Join(t.TempDir(), "nope.pem"), ""); err == nil {
			t.Fatal("expected error for missing key file")
		}
	})
}
