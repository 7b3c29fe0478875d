// Package apikey validates "Authorization: Bearer wh_..." credentials
// against the api_keys table (§4.P). Grounded on pkg/hashutil for the
// hashing primitive (SHA-256 here, matching the teacher's
// HashAlgoSHA256 branch) and on the teacher's *Error/Severity idiom
// (e.g. internal/robots/errors.go's RobotsError) for classifying
// authentication failures.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/webharvest/webharvest/internal/jobstore"
	"github.com/webharvest/webharvest/pkg/failure"
	"github.com/webharvest/webharvest/pkg/hashutil"
)

// KeyPrefix is prepended to every generated key, matching the Bearer
// scheme §6 requires ("<key> starts with wh_").
const KeyPrefix = "wh_"

// AuthErrorCause classifies why an Authorization header was rejected.
type AuthErrorCause string

const (
	ErrCauseMissingHeader AuthErrorCause = "missing authorization header"
	ErrCauseMalformed     AuthErrorCause = "malformed bearer token"
	ErrCauseUnknownKey    AuthErrorCause = "unknown api key"
	ErrCauseInactive      AuthErrorCause = "api key inactive"
	ErrCauseExpired       AuthErrorCause = "api key expired"
)

// AuthError is returned by Authenticate on any rejected credential; it
// always classifies as fatal for the current request (HTTP 401 per §7),
// never retryable.
type AuthError struct {
	Cause AuthErrorCause
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("apikey: %s", e.Cause)
}

func (e *AuthError) Severity() failure.Severity {
	return failure.SeverityFatal
}

// Store is the subset of jobstore.Store apikey depends on.
type Store interface {
	CreateAPIKey(jobstore.APIKey) error
	FindAPIKeyByHash(keyHash string) (jobstore.APIKey, bool, error)
	TouchAPIKey(id string) error
}

// Authenticator validates Bearer tokens against a Store.
type Authenticator struct {
	store Store
}

// New builds an Authenticator over store.
func New(store Store) Authenticator {
	return Authenticator{store: store}
}

// Generate mints a new key (id, the raw secret to hand back to the
// caller once, and the APIKey row to persist). The raw secret is never
// stored; only its SHA-256 hash is.
func Generate(id string, permissions string, rateLimitPerMinute int, expiresAt *time.Time) (rawKey string, record jobstore.APIKey, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", jobstore.APIKey{}, fmt.Errorf("apikey: generate: %w", err)
	}
	rawKey = KeyPrefix + base64.RawURLEncoding.EncodeToString(secret)

	hash, err := hashutil.HashBytes([]byte(rawKey), hashutil.HashAlgoSHA256)
	if err != nil {
		return "", jobstore.APIKey{}, fmt.Errorf("apikey: hash: %w", err)
	}

	record = jobstore.APIKey{
		ID:                 id,
		KeyHash:            hash,
		KeyPrefix:          rawKey[:8],
		Permissions:        permissions,
		RateLimitPerMinute: rateLimitPerMinute,
		ExpiresAt:          expiresAt,
	}
	return rawKey, record, nil
}

// Authenticate validates a raw Authorization header value ("Bearer wh_...")
// and, on success, bumps the key's usage counters (§4.P: "lastUsedAt/usageCount bump").
func (a Authenticator) Authenticate(authHeader string) (jobstore.APIKey, error) {
	if authHeader == "" {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseMissingHeader}
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseMalformed}
	}
	rawKey := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	if !strings.HasPrefix(rawKey, KeyPrefix) {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseMalformed}
	}

	hash, err := hashutil.HashBytes([]byte(rawKey), hashutil.HashAlgoSHA256)
	if err != nil {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseMalformed}
	}

	key, ok, err := a.store.FindAPIKeyByHash(hash)
	if err != nil {
		return jobstore.APIKey{}, fmt.Errorf("apikey: lookup: %w", err)
	}
	if !ok {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseUnknownKey}
	}
	if !key.Active {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseInactive}
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return jobstore.APIKey{}, &AuthError{Cause: ErrCauseExpired}
	}

	_ = a.store.TouchAPIKey(key.ID)
	return key, nil
}
