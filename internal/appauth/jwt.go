// Package appauth implements GitHub App authentication: short-lived
// RS256 app JWTs and the installation-token lifecycle (generate, list,
// validate, revoke).
package appauth

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtTTL is the app JWT lifetime GitHub accepts (10 minutes max).
const jwtTTL = 10 * time.Minute

// GenerateJWT signs a short-lived RS256 JWT identifying the app. GitHub
// exchanges it for installation tokens.
func GenerateJWT(appID int64, privateKeyPEM string) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(appID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing app JWT: %w", err)
	}
	return signed, nil
}

// ReadPrivateKey reads a PEM private key from disk.
func ReadPrivateKey(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading private key %s: %w", path, err)
	}
	return string(content), nil
}

// ResolvePrivateKey returns the key material from either a file path or
// direct content. Exactly one of the two must be provided.
func ResolvePrivateKey(path, content string) (string, error) {
	switch {
	case path != "" && content != "":
		return "", fmt.Errorf("cannot specify both a private key path and direct key content")
	case path == "" && content == "":
		return "", fmt.Errorf("must specify either a private key path or direct key content")
	case content != "":
		return content, nil
	default:
		return ReadPrivateKey(path)
	}
}
