package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookarchive/commoner/internal/testutil"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func startWatcher(t *testing.T, cfg Config) {
	t.Helper()
	cfg.Logger = testutil.DiscardLogger()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
	})
}

func waitFired(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}
}

func TestWatcher_Debounce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{Files: NewFiles(dir), Debounce: 100 * time.Millisecond, OnChange: rec.onChange})

	for _, name := range []string{"a.js", "b.js", "c.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	waitFired(t, rec)
	time.Sleep(250 * time.Millisecond)

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"a.js", "b.js", "c.js"}, calls[0])
}

func TestWatcher_IgnoresUnchangedContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "home.js")
	require.NoError(t, os.WriteFile(path, []byte("require('assert');"), 0o644))

	files := NewFiles(dir)
	_, err := files.ReadFile("home.js")
	require.NoError(t, err)

	rec := newRecorder()
	startWatcher(t, Config{Files: files, Debounce: 30 * time.Millisecond, OnChange: rec.onChange})

	require.NoError(t, os.WriteFile(path, []byte("require('assert');"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	require.NoError(t, os.WriteFile(path, []byte("require('other');"), 0o644))
	waitFired(t, rec)
	assert.Equal(t, []string{"home.js"}, rec.snapshot()[0])
}

func TestWatcher_IgnoreAndPatterns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{
		Files:    NewFiles(dir),
		Patterns: []string{"**/*.js"},
		Ignore:   []string{"vendor/**"},
		Debounce: 30 * time.Millisecond,
		OnChange: rec.onChange,
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock.pid"), []byte("1"), 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("x"), 0o644))
	waitFired(t, rec)
	assert.Equal(t, []string{"app.js"}, rec.snapshot()[0])
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{Files: NewFiles(dir), Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	require.NoError(t, os.Mkdir(filepath.Join(dir, "widget"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget", "share.js"), []byte("x"), 0o644))

	waitFired(t, rec)
	var all []string
	for _, c := range rec.snapshot() {
		all = append(all, c...)
	}
	assert.Contains(t, all, "widget/share.js")
}

func TestWatcher_QueuesWhileBusy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	release := make(chan struct{})
	var (
		mu    sync.Mutex
		calls [][]string
	)
	fired := make(chan struct{}, 4)
	onChange := func(_ context.Context, changed []string) error {
		mu.Lock()
		calls = append(calls, changed)
		first := len(calls) == 1
		mu.Unlock()
		fired <- struct{}{}
		if first {
			<-release
		}
		return nil
	}
	startWatcher(t, Config{Files: NewFiles(dir), Debounce: 30 * time.Millisecond, OnChange: onChange})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("1"), 0o644))
	<-fired

	// Both edits land while the first build is blocked.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.js"), []byte("1"), 0o644))
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.js"), []byte("1"), 0o644))
	time.Sleep(80 * time.Millisecond)
	close(release)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("queued rebuild never ran")
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"a.js"}, calls[0])
	assert.Equal(t, []string{"b.js", "c.js"}, calls[1])
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Files: NewFiles(t.TempDir()), Patterns: []string{"[unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid watch pattern")
}

func TestWatcher_RunTwice(t *testing.T) {
	w, err := New(Config{Files: NewFiles(t.TempDir()), Logger: testutil.DiscardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Error(t, w.Run(ctx))
}

func TestDefaultIgnores(t *testing.T) {
	ignores := DefaultIgnores()
	assert.True(t, matchAny(ignores, "out/.module-cache/abc.js"))
	assert.True(t, matchAny(ignores, ".lock.pid"))
	assert.False(t, matchAny(ignores, "widget/share.js"))
}
