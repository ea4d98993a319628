package transport_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"cryptalk/pkg/transport"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// newServerConnection dials a real WebSocket pair through httptest and
// returns the server-side transport connection, already running.
func newServerConnection(t *testing.T) (*transport.Connection, *websocket.Conn) {
	t.Helper()
	var wg sync.WaitGroup
	connCh := make(chan *transport.Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn := transport.NewConnection(context.Background(), &wg, ws,
			transport.ConnectionConfig{ReadTimeout: 5 * time.Second}, newTestLogger())
		conn.Run()
		connCh <- conn
		<-conn.Done()
	}))
	t.Cleanup(srv.Close)

	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client, _, err := websocket.Dial(dialCtx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { client.Close(websocket.StatusNormalClosure, "") })

	select {
	case conn := <-connCh:
		return conn, client
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not established")
		return nil, nil
	}
}

// Other users' sessions keep delivering messages and presence updates to
// a handle while its own connection tears down; that must never panic.
func TestSendDuringCloseDoesNotPanic(t *testing.T) {
	conn, _ := newServerConnection(t)

	var hammer sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		hammer.Add(1)
		go func() {
			defer hammer.Done()
			<-start
			for j := 0; j < 500; j++ {
				conn.Send([]byte(`{"event":"presence_update","payload":{"users":[]}}`))
			}
		}()
	}

	close(start)
	conn.Close(nil)
	hammer.Wait()

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not finish closing")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, _ := newServerConnection(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Close(nil)
		}()
	}
	wg.Wait()

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not finish closing")
	}
	// Send after close is a logged no-op, never a panic.
	conn.Send([]byte("late"))
}
