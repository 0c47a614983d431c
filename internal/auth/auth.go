// Package auth implements the API-key-to-token exchange. Accepted API keys
// are configured as Argon2id hashes; a verified key buys a short-lived
// Ed25519-signed JWT whose subject is the matched key's fingerprint.
//
// Signing keys can be loaded from PEM files or auto-generated for
// development.
package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "ichiba"

// Keyring verifies presented API keys against the configured Argon2id
// hashes. An empty keyring disables authentication entirely (dev mode).
// The hash list is expected to stay in the single digits; every
// verification attempt checks all of them.
type Keyring struct {
	hashes       []string
	fingerprints []string
}

// NewKeyring validates the encoded hashes and builds a keyring. A nil or
// empty hash list yields a disabled keyring.
func NewKeyring(hashes []string) (*Keyring, error) {
	k := &Keyring{
		hashes:       make([]string, 0, len(hashes)),
		fingerprints: make([]string, 0, len(hashes)),
	}
	for i, h := range hashes {
		// Surface malformed config at startup, not on the first request.
		if _, err := VerifyAPIKey("", h); err != nil {
			return nil, fmt.Errorf("auth: API key hash %d: %w", i, err)
		}
		k.hashes = append(k.hashes, h)
		k.fingerprints = append(k.fingerprints, Fingerprint(h))
	}
	return k, nil
}

// Enabled reports whether any API key hashes are configured.
func (k *Keyring) Enabled() bool { return len(k.hashes) > 0 }

// Verify checks apiKey against every configured hash and returns the
// fingerprint of the matching one. All hashes are always checked, so
// verification time does not depend on which key matched or whether any
// did.
func (k *Keyring) Verify(apiKey string) (string, bool) {
	var (
		matched string
		ok      bool
	)
	for i, h := range k.hashes {
		valid, err := VerifyAPIKey(apiKey, h)
		if err != nil {
			continue
		}
		if valid && !ok {
			matched, ok = k.fingerprints[i], true
		}
	}
	return matched, ok
}

// Fingerprint returns a short stable identifier for an encoded API key
// hash. It names the key in token subjects, rate-limit buckets, and logs
// without exposing hash material.
func Fingerprint(encoded string) string {
	sum := sha256.Sum256([]byte(encoded))
	return "key-" + hex.EncodeToString(sum[:6])
}

// JWTManager issues and validates the bearer tokens using Ed25519.
type JWTManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiration time.Duration
}

// NewJWTManager creates a JWTManager from PEM key files.
// If paths are empty, generates an ephemeral key pair (for development).
func NewJWTManager(privateKeyPath, publicKeyPath string, expiration time.Duration) (*JWTManager, error) {
	if privateKeyPath == "" || publicKeyPath == "" {
		slog.Warn("auth: no JWT key files configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		return &JWTManager{privateKey: priv, publicKey: pub, expiration: expiration}, nil
	}

	privPEM, err := os.ReadFile(privateKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth: private key is not Ed25519")
	}

	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}

	// Verify the public key matches the private key to catch misconfiguration
	// (e.g., deploying a private key from one environment with a public key from another).
	derivedPub := edPriv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derivedPub, edPub) {
		return nil, fmt.Errorf("auth: public key does not match private key")
	}

	return &JWTManager{privateKey: edPriv, publicKey: edPub, expiration: expiration}, nil
}

// IssueToken creates a signed JWT for the given subject (a key
// fingerprint from Keyring.Verify).
func (m *JWTManager) IssueToken(subject string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{issuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if claims.Issuer != issuer {
		return nil, fmt.Errorf("auth: invalid issuer: %s", claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: empty subject")
	}

	return claims, nil
}
