package kis

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMint(calls *int32) MintFunc {
	return func(ctx context.Context) (string, int, error) {
		atomic.AddInt32(calls, 1)
		return "test-token", 86400, nil
	}
}

func TestAcquireMintsOnce(t *testing.T) {
	var calls int32
	m := NewTokenManager(t.TempDir(), "paper", "app-key", testMint(&calls), zerolog.Nop())

	tok, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)

	tok, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAcquireConcurrent(t *testing.T) {
	var calls int32
	m := NewTokenManager(t.TempDir(), "paper", "app-key", testMint(&calls), zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.Acquire(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "test-token", tok)
		}()
	}
	wg.Wait()

	// Burst of concurrent callers performs at most one mint
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAcquireReusesDiskCacheAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	var firstCalls int32
	m1 := NewTokenManager(dir, "paper", "app-key", testMint(&firstCalls), zerolog.Nop())
	_, err := m1.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&firstCalls))

	// Fresh manager simulates a process restart: the token comes off disk,
	// no new mint happens.
	var secondCalls int32
	m2 := NewTokenManager(dir, "paper", "app-key", testMint(&secondCalls), zerolog.Nop())
	tok, err := m2.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondCalls))
}

func TestAcquireRemintsExpiredDiskCache(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	m := NewTokenManager(dir, "paper", "app-key", testMint(&calls), zerolog.Nop())

	// Plant an expired cache file
	expired := cachedToken{
		Token:     "stale-token",
		IssuedAt:  time.Now().Add(-25 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}
	data, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.CacheFile(), data, 0600))

	tok, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAcquireRespectsSafetyMargin(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	m := NewTokenManager(dir, "paper", "app-key", testMint(&calls), zerolog.Nop())

	// Token expiring inside the 5-minute safety margin counts as expired
	almostExpired := cachedToken{
		Token:     "soon-stale",
		IssuedAt:  time.Now().Add(-23 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(2 * time.Minute).Unix(),
	}
	data, err := json.Marshal(almostExpired)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.CacheFile(), data, 0600))

	tok, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheFileKeyedByEnvAndAppKey(t *testing.T) {
	dir := t.TempDir()

	a := NewTokenManager(dir, "paper", "key-a", nil, zerolog.Nop())
	b := NewTokenManager(dir, "paper", "key-b", nil, zerolog.Nop())
	c := NewTokenManager(dir, "prod", "key-a", nil, zerolog.Nop())

	assert.NotEqual(t, a.CacheFile(), b.CacheFile())
	assert.NotEqual(t, a.CacheFile(), c.CacheFile())
	assert.Contains(t, a.CacheFile(), "token_paper_")
	assert.Contains(t, c.CacheFile(), "token_prod_")
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()

	var calls int32
	m := NewTokenManager(dir, "paper", "app-key", testMint(&calls), zerolog.Nop())

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.FileExists(t, m.CacheFile())

	require.NoError(t, m.Purge())
	assert.NoFileExists(t, m.CacheFile())

	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
