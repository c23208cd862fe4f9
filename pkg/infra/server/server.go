// Package server 统一管理 HTTP 服务与辅助组件（如文档目录监听器）的启停。
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/finrouter/pkg/infra/server/transport/http"
	httpopts "github.com/kart-io/finrouter/pkg/options/http"
)

// Runnable is a named component with a start/stop lifecycle.
// Start must not block; long-running work belongs in its own goroutine.
type Runnable interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager 按注册顺序启动组件（HTTP 服务总是第一个），逆序停止。
type Manager struct {
	opts *httpopts.Options
	http *http.Server

	mu         sync.Mutex
	components []Runnable
	running    bool
}

func NewManager(opts *httpopts.Options) *Manager {
	if opts == nil {
		opts = httpopts.NewOptions()
	}
	hs := http.NewServer(opts)
	return &Manager{opts: opts, http: hs, components: []Runnable{hs}}
}

// HTTPServer exposes the gin transport so routes can be registered.
func (m *Manager) HTTPServer() *http.Server { return m.http }

// AddServer appends r; it starts after everything added before it.
func (m *Manager) AddServer(r Runnable) {
	m.mu.Lock()
	m.components = append(m.components, r)
	m.mu.Unlock()
}

func (m *Manager) snapshot(running bool) ([]Runnable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == running {
		return nil, false
	}
	m.running = running
	return append([]Runnable(nil), m.components...), true
}

// Start starts every component. On failure the ones already running are
// stopped again and the error names the component that failed.
func (m *Manager) Start(ctx context.Context) error {
	comps, ok := m.snapshot(true)
	if !ok {
		return fmt.Errorf("server manager already started")
	}

	for i, c := range comps {
		if err := c.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = comps[j].Stop(ctx)
			}
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		logger.Infow("component started", "name", c.Name())
	}
	logger.Infow("listening", "addr", m.http.Addr())
	return nil
}

// Stop stops components in reverse order and aggregates their errors.
// Stopping a manager that is not running is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	comps, ok := m.snapshot(false)
	if !ok {
		return nil
	}

	var errs []error
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", comps[i].Name(), err))
		}
	}
	logger.Info("all components stopped")
	return utilerrors.NewAggregate(errs)
}

// Run starts, waits for ctx to be cancelled, then stops within
// ShutdownTimeout.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
	defer cancel()
	return m.Stop(stopCtx)
}
