package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptalk/internal/presence"
)

func TestRequestLoggerIncludesAuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var handlerCalled bool
	handler := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}),
		RequestMetadataMiddleware(),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reqMeta, _ := ReqMetadataFrom(r.Context())
				reqMeta.Identity = presence.Identity{UserID: "user-42", DisplayName: "Alice"}
				next.ServeHTTP(w, r)
			})
		},
		NewRequestLogger(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/conversations/bob/messages", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !handlerCalled {
		t.Fatal("expected the wrapped handler to run")
	}
	out := buf.String()
	if !strings.Contains(out, "userID=user-42") {
		t.Errorf("expected log entry to carry the authenticated user id, got: %s", out)
	}
	if !strings.Contains(out, "ip=10.0.0.7") {
		t.Errorf("expected log entry to carry the client ip, got: %s", out)
	}
}

func TestRequestLoggerWithoutIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		RequestMetadataMiddleware(),
		NewRequestLogger(logger),
	)

	req := httptest.NewRequest(http.MethodPost, "/signup", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "userID=") {
		t.Errorf("unauthenticated request must not log a user id, got: %s", out)
	}
	if !strings.Contains(out, "uri=/signup") {
		t.Errorf("expected log entry to carry the request uri, got: %s", out)
	}
}
