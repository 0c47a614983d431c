package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/auth"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestKeyringVerify(t *testing.T) {
	first, err := auth.HashAPIKey("key-one")
	require.NoError(t, err)
	second, err := auth.HashAPIKey("key-two")
	require.NoError(t, err)

	ring, err := auth.NewKeyring([]string{first, second})
	require.NoError(t, err)
	assert.True(t, ring.Enabled())

	subject, ok := ring.Verify("key-two")
	require.True(t, ok)
	assert.Equal(t, auth.Fingerprint(second), subject)

	_, ok = ring.Verify("key-three")
	assert.False(t, ok)
}

func TestKeyringDisabledWhenEmpty(t *testing.T) {
	ring, err := auth.NewKeyring(nil)
	require.NoError(t, err)
	assert.False(t, ring.Enabled())

	_, ok := ring.Verify("anything")
	assert.False(t, ok)
}

func TestKeyringRejectsMalformedHash(t *testing.T) {
	_, err := auth.NewKeyring([]string{"not-a-valid-hash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash 0")
}

func TestFingerprintStable(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key")
	require.NoError(t, err)

	fp := auth.Fingerprint(hash)
	assert.Equal(t, fp, auth.Fingerprint(hash))
	assert.Len(t, fp, len("key-")+12)
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", 1*time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("key-abc123def456")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "key-abc123def456", claims.Subject)
	assert.Equal(t, "ichiba", claims.Issuer)
}

// newTestJWTManagerWithKey creates a JWTManager backed by a real Ed25519 key pair
// written to temp PEM files, and returns the raw private key for forging tokens.
func newTestJWTManagerWithKey(t *testing.T) (*auth.JWTManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	return mgr, priv
}

// forgeToken signs a JWT with the given private key and claims.
func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &jwt.RegisteredClaims{
		Subject:   "key-abc123def456",
		Issuer:    "not-ichiba",
		Audience:  jwt.ClaimStrings{"ichiba"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.New().String(),
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid issuer")
}

func TestValidateToken_WrongAudience(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &jwt.RegisteredClaims{
		Subject:   "key-abc123def456",
		Issuer:    "ichiba",
		Audience:  jwt.ClaimStrings{"someone-else"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.New().String(),
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateToken_EmptySubject(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &jwt.RegisteredClaims{
		Issuer:    "ichiba",
		Audience:  jwt.ClaimStrings{"ichiba"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.New().String(),
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty subject")
}

func TestValidateToken_Expired(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	past := time.Now().UTC().Add(-2 * time.Hour)
	token := forgeToken(t, privKey, &jwt.RegisteredClaims{
		Subject:   "key-abc123def456",
		Issuer:    "ichiba",
		Audience:  jwt.ClaimStrings{"ichiba"},
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		ID:        uuid.New().String(),
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateToken_ForeignKeyPair(t *testing.T) {
	mgr, _ := newTestJWTManagerWithKey(t)
	_, otherKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Now().UTC()
	token := forgeToken(t, otherKey, &jwt.RegisteredClaims{
		Subject:   "key-abc123def456",
		Issuer:    "ichiba",
		Audience:  jwt.ClaimStrings{"ichiba"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.New().String(),
	})

	_, err = mgr.ValidateToken(token)
	require.Error(t, err)
}
