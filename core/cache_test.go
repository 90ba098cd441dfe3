package core_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	testutil "github.com/trezcool/academia/tests"
)

func TestCachedValue(t *testing.T) {
	tests := []struct {
		name       string
		invalidate bool
		loadErr    error
		wantCached bool
	}{
		{name: "miss is cached", wantCached: true},
		{name: "invalidated while loading", invalidate: true},
		{name: "load error", loadErr: errors.New("db down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := testutil.NewCache()
			val := core.NewCachedValue[[]string](cache, "k", 0)

			got, err := val.Get(func() ([]string, error) {
				if tt.invalidate {
					val.Invalidate()
				}
				return []string{"stale"}, tt.loadErr
			})
			if tt.loadErr != nil {
				assert.Equal(t, tt.loadErr, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, []string{"stale"}, got)
			}
			assert.Equal(t, tt.wantCached, cache.Has("k"))
		})
	}

	t.Run("hit", func(t *testing.T) {
		cache := testutil.NewCache()
		val := core.NewCachedValue[int](cache, "k", 0)
		calls := 0
		load := func() (int, error) {
			calls++
			return calls, nil
		}

		first, err := val.Get(load)
		require.NoError(t, err)
		second, err := val.Get(load)
		require.NoError(t, err)
		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)

		val.Invalidate()
		assert.False(t, cache.Has("k"))
		third, err := val.Get(load)
		require.NoError(t, err)
		assert.Equal(t, 2, third)
	})
}
