// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/user-svc/internal/config"
)

type readiness struct {
	ready    atomic.Bool
	shutdown atomic.Bool
}

func (p *readiness) SetReady(ready bool)       { p.ready.Store(ready) }
func (p *readiness) SetShutdown(shutdown bool) { p.shutdown.Store(shutdown) }

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()

	p := &readiness{}
	p.ready.Store(true)

	srv := New(Config{
		ServerConfig: config.ServerConfig{
			Host:            "127.0.0.1",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			IdleTimeout:     time.Second,
			ShutdownTimeout: time.Second,
		},
		HealthHandler: p,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	srv.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "pong", string(body))

	require.NoError(t, srv.Shutdown(context.Background(), 0))
	assert.False(t, p.ready.Load())
	assert.True(t, p.shutdown.Load())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
