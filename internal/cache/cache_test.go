package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/store"
)

// newCaches returns one instance of every backend, each in its own temp dir.
func newCaches(t *testing.T) map[string]Cache {
	t.Helper()

	disk, err := NewDiskCache(filepath.Join(t.TempDir(), "cache"), ".js")
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return map[string]Cache{
		BackendDisk:   disk,
		BackendMemory: NewMemoryCache(),
		BackendSQLite: NewSQLiteCache(st, WithWriter("build-test")),
	}
}

func constant(data string, calls *atomic.Int32) BuildFunc {
	return func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(data), nil
	}
}

func TestCache_GetOrBuild_BuildsOnce(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int32

			first, err := c.GetOrBuild(ctx, "k", constant("value", &calls))
			require.NoError(t, err)
			second, err := c.GetOrBuild(ctx, "k", constant("other", &calls))
			require.NoError(t, err)

			assert.Equal(t, "value", string(first))
			assert.Equal(t, "value", string(second))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestCache_GetOrBuild_ConcurrentCallersShareBuild(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int32
			release := make(chan struct{})

			build := func(ctx context.Context) ([]byte, error) {
				calls.Add(1)
				<-release
				return []byte("shared"), nil
			}

			var wg sync.WaitGroup
			results := make([]string, 8)
			for i := range results {
				wg.Add(1)
				go func() {
					defer wg.Done()
					data, err := c.GetOrBuild(ctx, "k", build)
					assert.NoError(t, err)
					results[i] = string(data)
				}()
			}
			close(release)
			wg.Wait()

			assert.Equal(t, int32(1), calls.Load())
			for _, r := range results {
				assert.Equal(t, "shared", r)
			}
		})
	}
}

func TestCache_GetOrBuild_ErrorPropagates(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("boom")
			_, err := c.GetOrBuild(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)

			err = c.Publish(context.Background(), "k", filepath.Join(t.TempDir(), "out.js"))
			assert.True(t, module.HasCode(err, module.ErrCodeColdCache), "got %v", err)

			data, err := c.GetOrBuild(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
				return []byte("fixed"), nil
			})
			require.NoError(t, err, "a failed build is retried")
			assert.Equal(t, "fixed", string(data))
		})
	}
}

func TestCache_Publish(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int32
			_, err := c.GetOrBuild(ctx, "k", constant("published", &calls))
			require.NoError(t, err)

			dest := filepath.Join(t.TempDir(), "nested", "dir", "out.js")
			require.NoError(t, c.Publish(ctx, "k", dest))
			got, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, "published", string(got))

			// Publishing again over an unrelated file replaces it.
			require.NoError(t, os.Remove(dest))
			require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))
			require.NoError(t, c.Publish(ctx, "k", dest))
			got, err = os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, "published", string(got))

			entries, err := os.ReadDir(filepath.Dir(dest))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no staging files are left behind")
		})
	}
}

func TestCache_Publish_Cold(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			err := c.Publish(context.Background(), "never-built", filepath.Join(t.TempDir(), "x.js"))
			assert.True(t, module.HasCode(err, module.ErrCodeColdCache), "got %v", err)
		})
	}
}

func TestCache_Stats(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int32
			_, err := c.GetOrBuild(ctx, "a", constant("12", &calls))
			require.NoError(t, err)
			_, err = c.GetOrBuild(ctx, "b", constant("345", &calls))
			require.NoError(t, err)

			st, err := c.(Statter).Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, name, st.Backend)
			assert.Equal(t, 2, st.Entries)
			assert.Equal(t, int64(5), st.Bytes)
		})
	}
}
