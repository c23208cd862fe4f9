// Package watcher 监听文档目录，文件变更后防抖触发强制重建索引。
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"

	"github.com/kart-io/finrouter/pkg/infra/pool"
)

// DefaultDebounce 默认防抖间隔。
const DefaultDebounce = 2 * time.Second

// Reingest 重建索引回调。
type Reingest func(ctx context.Context) error

// Watcher 文档目录监听器，实现 server.Runnable。
type Watcher struct {
	dir        string
	debounce   time.Duration
	extensions []string
	reingest   Reingest
	pool       *pool.Pool

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	timer  *time.Timer
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建监听器，debounce <= 0 时使用 DefaultDebounce。
func New(dir string, debounce time.Duration, reingest Reingest) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:        dir,
		debounce:   debounce,
		extensions: []string{".txt"},
		reingest:   reingest,
	}
}

// WithPool 在索引池中执行重建。池满时推迟到下一个防抖周期。
func (w *Watcher) WithPool(p *pool.Pool) *Watcher {
	w.pool = p
	return w
}

// Name 返回名称。
func (w *Watcher) Name() string {
	return "document-watcher"
}

// Start 开始监听目录。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(runCtx, fsw, w.done)

	logger.Infow("document watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop 停止监听，并等待事件循环退出。
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	cancel()
	err := fsw.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info("document watcher stopped")
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				logger.Debugw("document changed", "file", ev.Name, "op", ev.Op.String())
				w.schedule(ctx)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warnw("document watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	ext := filepath.Ext(ev.Name)
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// schedule 重置防抖定时器。
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.fire(ctx) })
}

func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	run := func() {
		if err := w.reingest(ctx); err != nil {
			logger.Errorw("re-ingest after document change failed", "dir", w.dir, "error", err.Error())
			return
		}
		logger.Infow("documents re-ingested after change", "dir", w.dir)
	}

	if w.pool == nil {
		run()
		return
	}
	if err := w.pool.Submit(run); err != nil {
		if errors.Is(err, pool.ErrPoolOverload) {
			logger.Debugw("re-ingest already running, deferring", "dir", w.dir)
			w.schedule(ctx)
			return
		}
		logger.Warnw("failed to submit re-ingest", "error", err.Error())
	}
}
