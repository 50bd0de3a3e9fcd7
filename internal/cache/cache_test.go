package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/internal/metrics"
)

type place struct {
	Lat   float64 `json:"lat"`
	Label string  `json:"label"`
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "urbanlens:geocode:10 rue de rivoli, paris", Key("geocode", "  10 Rue de Rivoli, Paris "))
	assert.Equal(t, "urbanlens:parcel:48.858400:2.294500", Key("parcel", 48.8584, 2.2945))
	assert.Equal(t, "urbanlens:imagery:150:true", Key("imagery", 150, true))
}

func TestGetOrLoad_CachesValue(t *testing.T) {
	store := NewMemory()
	calls := 0
	load := func(context.Context) (place, error) {
		calls++
		return place{Lat: 48.85, Label: "Paris"}, nil
	}

	hits := testutil.ToFloat64(metrics.CacheHits.WithLabelValues("test-cached"))
	misses := testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("test-cached"))

	got, err := GetOrLoad(context.Background(), store, "test-cached", "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.Label)

	got, err = GetOrLoad(context.Background(), store, "test-cached", "k", time.Minute, load)
	require.NoError(t, err)
	assert.InDelta(t, 48.85, got.Lat, 1e-9)
	assert.Equal(t, 1, calls)

	assert.InDelta(t, hits+1, testutil.ToFloat64(metrics.CacheHits.WithLabelValues("test-cached")), 0)
	assert.InDelta(t, misses+1, testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("test-cached")), 0)
}

func TestGetOrLoad_ErrorsAreNotCached(t *testing.T) {
	store := NewMemory()
	calls := 0
	load := func(context.Context) (*place, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream down")
		}
		return &place{Label: "ok"}, nil
	}

	_, err := GetOrLoad(context.Background(), store, "test", "k", time.Minute, load)
	require.Error(t, err)

	got, err := GetOrLoad(context.Background(), store, "test", "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Label)
	assert.Equal(t, 2, calls)
}

func TestGetOrLoad_DisabledOrBroken(t *testing.T) {
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	for _, store := range []Store{nil, failingStore{}} {
		_, err := GetOrLoad(context.Background(), store, "test", "k", time.Minute, load)
		require.NoError(t, err)
	}
	_, err := GetOrLoad(context.Background(), NewMemory(), "test", "k", 0, load)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
}

func TestMemory_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(context.Background(), "k", []byte("v"), time.Minute))

	got, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)

	_, err = m.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}
