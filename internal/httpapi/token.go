package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenPrefix is the prefix for serve API tokens
	TokenPrefix = "riq_sk_" // #nosec G101 //nolint:gosec // Not a credential, just a prefix pattern

	// TokenEnvVar is the environment variable holding a plaintext token
	TokenEnvVar = "RIQ_TOKEN"

	// tokenLength is the length of the random part of tokens (in bytes, hex encoded)
	tokenLength = 32

	// tokenPrefixLength is the number of hex characters kept visible when masking
	tokenPrefixLength = 8

	// bcryptCost is the cost factor for bcrypt hashing
	bcryptCost = 12
)

// GenerateToken generates a new serve API token.
// Format: riq_sk_<64 hex chars>
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(bytes), nil
}

// HashToken creates a bcrypt hash of a token. Only the hash is ever
// written to disk; the raw token is shown once at generation time.
func HashToken(token string) (string, error) {
	// Hash the actual secret, not the recognizable prefix
	secret := strings.TrimPrefix(token, TokenPrefix)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken checks if a token matches a stored hash.
func VerifyToken(token, hash string) bool {
	secret := strings.TrimPrefix(token, TokenPrefix)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IsValidTokenFormat checks if a token has the expected shape.
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	secret := strings.TrimPrefix(token, TokenPrefix)
	if len(secret) != tokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// MaskToken returns a masked version of a token for display.
// Example: riq_sk_a1b2c3d4****...****
func MaskToken(token string) string {
	if len(token) < len(TokenPrefix)+tokenPrefixLength {
		return "****"
	}
	return token[:len(TokenPrefix)+tokenPrefixLength] + "****...****"
}

// WriteTokenHash stores a token hash at path with owner-only permissions.
func WriteTokenHash(path, hash string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hash+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// ReadTokenHash loads a stored token hash. A missing file returns an
// empty hash, not an error; auth treats that as "no token configured".
func ReadTokenHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
