package main

import (
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownServerDrainsInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	// Shut down only after the request is inside the handler, and let
	// the handler finish while the drain is underway.
	<-started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	shutdownServer(srv)

	assert.Equal(t, http.StatusOK, <-status)
	assert.ErrorIs(t, <-serveErr, http.ErrServerClosed)
}
