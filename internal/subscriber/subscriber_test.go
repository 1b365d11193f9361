package subscriber

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysol/mirror/internal/mirrorlog"
)

var upgrader = websocket.Upgrader{}

func notificationFrame(signature string) string {
	return `{"jsonrpc":"2.0","method":"logsNotification","params":{"result":{"value":{"signature":"` + signature + `"}}}}`
}

func TestSignatureReceiverSecondCallPanics(t *testing.T) {
	s := New(DefaultConfig("ws://unused", "wallet"), mirrorlog.New(discard{}, mirrorlog.LevelInfo))
	_ = s.SignatureReceiver()

	assert.Panics(t, func() {
		s.SignatureReceiver()
	})
}

func TestRunDeliversSignaturesAndStopsOnSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Drain the subscribe request.
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(notificationFrame("sig-1"))))
		// Non-notification frames must be ignored by the fast-path filter.
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(notificationFrame("sig-2"))))

		// Keep the connection open until the test closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg := DefaultConfig(wsURL, "wallet")
	cfg.PingInterval = time.Hour

	s := New(cfg, mirrorlog.New(discard{}, mirrorlog.LevelInfo))
	sigs := s.SignatureReceiver()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Run(stop)
		close(done)
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case sig := <-sigs:
			got = append(got, sig)
		case <-timeout:
			t.Fatal("did not receive expected signatures in time")
		}
	}
	assert.Equal(t, []string{"sig-1", "sig-2"}, got)

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after signal")
	}
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	var connections int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connections++
		_, _, _ = conn.ReadMessage()
		if connections == 1 {
			conn.Close()
			return
		}
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(notificationFrame("sig-after-reconnect"))))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg := DefaultConfig(wsURL, "wallet")
	cfg.ReconnectBackoff = 10 * time.Millisecond
	cfg.PingInterval = time.Hour

	s := New(cfg, mirrorlog.New(discard{}, mirrorlog.LevelInfo))
	sigs := s.SignatureReceiver()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Run(stop)
		close(done)
	}()

	select {
	case sig := <-sigs:
		assert.Equal(t, "sig-after-reconnect", sig)
	case <-time.After(2 * time.Second):
		t.Fatal("did not reconnect and deliver a signature in time")
	}

	close(stop)
	<-done
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
