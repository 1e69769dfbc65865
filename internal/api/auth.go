package api

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	tokenHashSaltLength = 16
	tokenHashKeyLength  = 32
	tokenHashIterations = 120000
)

// ErrInvalidToken is returned when a presented token matches no configured
// credential.
var ErrInvalidToken = errors.New("invalid api token")

// HashToken derives a storable hash for an API token. The output embeds the
// algorithm parameters so they can be raised later without invalidating
// existing hashes.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token is required")
	}
	salt := make([]byte, tokenHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(token), salt, tokenHashIterations, tokenHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", tokenHashIterations, encodedSalt, encodedKey), nil
}

func verifyToken(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify token: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify token: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify token: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify token: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify token: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// TokenVerifier checks bearer tokens against a set of configured hashes. An
// empty verifier accepts every request, which is how standalone development
// runs operate.
type TokenVerifier struct {
	hashes []string
}

// NewTokenVerifier builds a verifier from stored token hashes. Blank entries
// are skipped.
func NewTokenVerifier(hashes []string) *TokenVerifier {
	kept := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		if trimmed := strings.TrimSpace(hash); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return &TokenVerifier{hashes: kept}
}

// Enabled reports whether any credential is configured.
func (v *TokenVerifier) Enabled() bool {
	return v != nil && len(v.hashes) > 0
}

// Verify checks the candidate against every configured hash.
func (v *TokenVerifier) Verify(candidate string) error {
	if !v.Enabled() {
		return nil
	}
	if candidate == "" {
		return ErrInvalidToken
	}
	for _, hash := range v.hashes {
		if err := verifyToken(hash, candidate); err == nil {
			return nil
		}
	}
	return ErrInvalidToken
}

// ExtractToken pulls the bearer token off the request, preferring the
// Authorization header and falling back to the X-Api-Token header the host
// sets on internal calls.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Token"))
}

// Authorize validates the request's bearer token. It is a no-op when no
// tokens are configured.
func (h *Handler) Authorize(r *http.Request) error {
	if h.Tokens == nil {
		return nil
	}
	return h.Tokens.Verify(ExtractToken(r))
}
