package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpopts "github.com/kart-io/finrouter/pkg/options/http"
)

type fakeRunnable struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeRunnable) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeRunnable) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeRunnable) Name() string { return f.name }

func testOptions() *httpopts.Options {
	opts := httpopts.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode
	opts.ShutdownTimeout = time.Second
	return opts
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(testOptions())
	aux := &fakeRunnable{name: "watcher"}
	m.AddServer(aux)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, aux.started)
	assert.Error(t, m.Start(context.Background()))

	require.NoError(t, m.Stop(context.Background()))
	assert.True(t, aux.stopped)
	assert.NoError(t, m.Stop(context.Background()))
}

func TestManagerStartRollsBack(t *testing.T) {
	m := NewManager(testOptions())
	ok := &fakeRunnable{name: "ok"}
	bad := &fakeRunnable{name: "bad", startErr: errors.New("boom")}
	m.AddServer(ok)
	m.AddServer(bad)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.True(t, ok.stopped)
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	m := NewManager(testOptions())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
