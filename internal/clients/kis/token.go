package kis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// The broker allows at most one token issuance per day, so a token must
// survive process restarts and concurrent request bursts. Lookup order:
// in-memory cache, on-disk cache file, broker mint. All three steps run
// inside one critical section per manager.
const tokenSafetyMargin = 5 * time.Minute

// MintFunc issues a fresh token from the broker.
type MintFunc func(ctx context.Context) (token string, expiresIn int, err error)

// TokenManager caches broker access tokens in memory and on disk, keyed by
// (environment, app key).
type TokenManager struct {
	mu       sync.Mutex
	cacheDir string
	env      string
	keyHash  string
	mint     MintFunc
	log      zerolog.Logger

	token     string
	issuedAt  time.Time
	expiresAt time.Time
}

// cachedToken is the on-disk representation.
type cachedToken struct {
	Token     string `json:"token"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// NewTokenManager creates a token manager. cacheDir defaults to
// ~/.stockhunter when empty.
func NewTokenManager(cacheDir, env, appKey string, mint MintFunc, log zerolog.Logger) *TokenManager {
	if cacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cacheDir = filepath.Join(home, ".stockhunter")
		}
	}

	sum := sha256.Sum256([]byte(appKey))

	return &TokenManager{
		cacheDir: cacheDir,
		env:      env,
		keyHash:  hex.EncodeToString(sum[:8]),
		mint:     mint,
		log:      log.With().Str("component", "token-manager").Logger(),
	}
}

// CacheFile returns the path of the on-disk token cache for this
// (environment, app key) pair.
func (m *TokenManager) CacheFile() string {
	return filepath.Join(m.cacheDir, fmt.Sprintf("token_%s_%s.json", m.env, m.keyHash))
}

// Acquire returns a non-expired token, minting one only when neither cache
// has a usable entry. Concurrent callers serialise on the manager's mutex,
// so a burst of requests performs at most one mint.
func (m *TokenManager) Acquire(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	// In-memory cache
	if m.token != "" && now.Before(m.expiresAt.Add(-tokenSafetyMargin)) {
		return m.token, nil
	}

	// On-disk cache
	if tok, ok := m.loadFromFile(now); ok {
		return tok, nil
	}

	// Broker mint
	token, expiresIn, err := m.mint(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	m.issuedAt = now
	m.expiresAt = now.Add(time.Duration(expiresIn) * time.Second)

	if err := m.saveToFile(); err != nil {
		// A failed cache write is not fatal; the token is still usable.
		m.log.Warn().Err(err).Str("path", m.CacheFile()).Msg("Failed to persist token cache")
	}

	m.log.Info().Time("expires_at", m.expiresAt).Msg("Minted new access token")
	return m.token, nil
}

// Purge drops both caches, forcing a mint on the next Acquire. Used on
// app-key rotation.
func (m *TokenManager) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.issuedAt = time.Time{}
	m.expiresAt = time.Time{}

	if err := os.Remove(m.CacheFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token cache: %w", err)
	}
	return nil
}

// loadFromFile adopts the on-disk token if it has not crossed the safety
// margin. Expired files are deleted. Caller holds the mutex.
func (m *TokenManager) loadFromFile(now time.Time) (string, bool) {
	path := m.CacheFile()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		m.log.Warn().Err(err).Str("path", path).Msg("Corrupt token cache, removing")
		_ = os.Remove(path)
		return "", false
	}

	expiresAt := time.Unix(cached.ExpiresAt, 0)
	if cached.Token == "" || !now.Before(expiresAt.Add(-tokenSafetyMargin)) {
		_ = os.Remove(path)
		return "", false
	}

	m.token = cached.Token
	m.issuedAt = time.Unix(cached.IssuedAt, 0)
	m.expiresAt = expiresAt

	m.log.Debug().Time("expires_at", expiresAt).Msg("Loaded token from disk cache")
	return m.token, true
}

// saveToFile persists the in-memory token. Caller holds the mutex.
func (m *TokenManager) saveToFile() error {
	if err := os.MkdirAll(m.cacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(cachedToken{
		Token:     m.token,
		IssuedAt:  m.issuedAt.Unix(),
		ExpiresAt: m.expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	// Token grants API access; keep the file owner-only.
	return os.WriteFile(m.CacheFile(), data, 0600)
}
