package httptransport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunStopsCleanlyWhenContextEnds(t *testing.T) {
	srv := NewServer(DefaultServerConfig("127.0.0.1:0"), http.NotFoundHandler(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenErrors(t *testing.T) {
	srv := NewMetricsServer("127.0.0.1:99999", zaptest.NewLogger(t))
	require.Equal(t, "127.0.0.1:99999", srv.Addr())
	require.Error(t, srv.Run(context.Background()))
}
