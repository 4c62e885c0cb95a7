package oauth

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreConcurrentRedeemHasOneWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	digest := HashToken("the-code")
	require.NoError(t, store.SaveAuthCode(ctx, &AuthorizationCode{
		CodeDigest: digest,
		ClientID:   "client-a",
		UserID:     "user-7",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(10 * time.Minute),
	}))

	const workers = 32
	var winners int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, replayed, err := store.RedeemAuthCode(ctx, digest)
			if err == nil && !replayed {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners)
}

func TestMemoryStoreConcurrentRotateHasOneWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	oldDigest := HashToken("old-refresh")
	require.NoError(t, store.SaveToken(ctx, &Token{
		ID:            "tok-1",
		AccessDigest:  HashToken("old-access"),
		RefreshDigest: oldDigest,
		ClientID:      "client-a",
		ExpiresAt:     time.Now().Add(time.Hour),
	}))

	const workers = 32
	var winners int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			suffix := strconv.Itoa(i)
			next := &Token{
				ID:            "next-" + suffix,
				AccessDigest:  HashToken("next-access-" + suffix),
				RefreshDigest: HashToken("next-refresh-" + suffix),
				ClientID:      "client-a",
				ExpiresAt:     time.Now().Add(time.Hour),
			}
			if err := store.RotateToken(ctx, oldDigest, next); err == nil {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners)
}

func TestMemoryStoreConcurrentConsumeDeviceCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	digest := HashToken("device-code")
	require.NoError(t, store.SaveDeviceCode(ctx, &DeviceCode{
		DeviceCodeDigest: digest,
		UserCode:         "BCDF-GHJK",
		ClientID:         "tv-app",
		UserID:           "user-9",
		Status:           DeviceStatusApproved,
		ExpiresAt:        time.Now().Add(time.Hour),
	}))

	const workers = 32
	var winners int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeDeviceCode(ctx, digest); err == nil {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners)
}

func TestMemoryStorePurgeExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveAuthCode(ctx, &AuthorizationCode{
		CodeDigest: "dead", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.SaveAuthCode(ctx, &AuthorizationCode{
		CodeDigest: "live", ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, store.SaveDeviceCode(ctx, &DeviceCode{
		DeviceCodeDigest: "dev-dead", UserCode: "AAAA-AAAA", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.SaveToken(ctx, &Token{
		ID: "tok-dead", AccessDigest: "ad", ExpiresAt: now.Add(-time.Minute),
	}))

	require.NoError(t, store.PurgeExpired(ctx, now))

	_, _, err := store.RedeemAuthCode(ctx, "dead")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = store.RedeemAuthCode(ctx, "live")
	assert.NoError(t, err)
	_, err = store.GetDeviceCode(ctx, "dev-dead")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetTokenByAccess(ctx, "ad")
	assert.ErrorIs(t, err, ErrNotFound)

	// Freed user codes can be allocated again.
	exists, err := store.UserCodeExists(ctx, "AAAA-AAAA")
	require.NoError(t, err)
	assert.False(t, exists)
}
