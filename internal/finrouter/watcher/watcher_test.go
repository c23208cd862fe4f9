package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	w := New("docs", 0, nil)
	assert.Equal(t, DefaultDebounce, w.debounce)

	tests := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: "docs/travel.txt", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "docs/travel.txt", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "docs/travel.txt", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "docs/travel.txt", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "docs/travel.txt", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "docs/travel.md", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "docs/.travel.txt.swp", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.relevant(tt.ev), tt.ev.String())
	}
}

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, 100*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("policy"), 0o600))
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	// 同一批变更只触发一次
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, 50*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o600))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, w.Stop(context.Background()))
	// 重复停止无副作用
	require.NoError(t, w.Stop(context.Background()))
}

func TestWatcherStartMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), time.Second, func(context.Context) error { return nil })
	assert.Error(t, w.Start(context.Background()))
	assert.Equal(t, "document-watcher", w.Name())
}
