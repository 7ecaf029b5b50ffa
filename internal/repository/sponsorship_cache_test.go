package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkpool-labs/relaygate/internal/model"
)

func TestMemorySponsorshipCachePutGet(t *testing.T) {
	cache := NewMemorySponsorshipCache(16, time.Minute)
	ctx := context.Background()

	addr := "0xrefund"
	info := &model.GasSponsorshipInfo{
		RefundAmount:  model.NewAmount(42),
		RefundAddress: &addr,
	}
	require.NoError(t, cache.Put(ctx, "quote-key", info))

	got, err := cache.Get(ctx, "quote-key")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.RefundAmount.String())
	require.NotNil(t, got.RefundAddress)
	assert.Equal(t, addr, *got.RefundAddress)
}

func TestMemorySponsorshipCacheMissIsNil(t *testing.T) {
	cache := NewMemorySponsorshipCache(16, time.Minute)

	got, err := cache.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySponsorshipCacheGetReturnsCopy(t *testing.T) {
	cache := NewMemorySponsorshipCache(16, time.Minute)
	ctx := context.Background()

	info := &model.GasSponsorshipInfo{RefundAmount: model.NewAmount(1)}
	require.NoError(t, cache.Put(ctx, "k", info))

	first, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	first.RefundNativeEth = true

	second, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, second.RefundNativeEth)
}
