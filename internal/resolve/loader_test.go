package resolve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Get(t *testing.T) {
	t.Run("concurrent_callers_share_one_fetch", func(t *testing.T) {
		var calls atomic.Int32
		loader := NewLoader(func(ctx context.Context, key string) (string, error) {
			calls.Add(1)
			return "name-" + key, nil
		})

		const workers = 16
		results := make([]string, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = loader.Get(context.Background(), "u1")
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "name-u1", results[i])
		}
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("failed_fetch_is_not_cached", func(t *testing.T) {
		var calls atomic.Int32
		loader := NewLoader(func(ctx context.Context, key string) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("boom")
			}
			return "recovered", nil
		})

		_, err := loader.Get(context.Background(), "k")
		require.Error(t, err)

		v, err := loader.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "recovered", v)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("distinct_keys_fetch_independently", func(t *testing.T) {
		var calls atomic.Int32
		loader := NewLoader(func(ctx context.Context, key string) (string, error) {
			calls.Add(1)
			return key, nil
		})

		_, err := loader.Get(context.Background(), "a")
		require.NoError(t, err)
		_, err = loader.Get(context.Background(), "b")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 2, loader.Len())
	})

	t.Run("clear_forces_a_reload", func(t *testing.T) {
		var calls atomic.Int32
		loader := NewLoader(func(ctx context.Context, key string) (string, error) {
			calls.Add(1)
			return key, nil
		})

		_, err := loader.Get(context.Background(), "a")
		require.NoError(t, err)
		loader.Clear()
		_, err = loader.Get(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})
}
