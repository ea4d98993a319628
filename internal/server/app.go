package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"cryptalk/internal/auth"
	"cryptalk/internal/presence"
	"cryptalk/internal/relay"
	"cryptalk/internal/server/middleware"
	"cryptalk/pkg/config"
	"cryptalk/pkg/metrics"
	"cryptalk/pkg/store"
	"cryptalk/pkg/transport"
)

// transport connections must be usable as presence handles.
var _ presence.Handle = (*transport.Connection)(nil)

type App struct {
	logger   *slog.Logger
	registry *presence.Registry
	router   *relay.Router
	store    *store.Store
	wg       sync.WaitGroup
	http     *http.Server
	config   *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st *store.Store) *App {
	registry := presence.NewRegistry(logger)
	broadcaster := presence.NewBroadcaster(logger)
	router := relay.NewRouter(logger, registry, broadcaster, st, cfg.Relay)

	app := &App{
		logger:   logger,
		registry: registry,
		router:   router,
		store:    st,
		config:   cfg,
		ctx:      rootCtx,
	}

	authSvc := auth.NewService(logger, st, cfg.Server.Auth)

	// Cycler closes the user's oldest registered session to make room.
	cycler := func(userID string) {
		oldest, found := registry.OldestSession(userID)
		if found {
			logger.Info("Cycling session: closing oldest", slog.String("userID", userID), slog.String("connID", oldest.ID().String()))
			oldest.Close(errors.New("session cycled by new connection"))
		}
	}

	authMW := middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret)

	r := mux.NewRouter()
	r.HandleFunc("/signup", authSvc.Signup).Methods(http.MethodPost)
	r.HandleFunc("/login", authSvc.Login).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/conversations/{peer}/messages",
		middleware.Chain(http.HandlerFunc(app.historyHandler),
			middleware.RequestMetadataMiddleware(),
			authMW,
			middleware.NewRequestLogger(logger),
		),
	).Methods(http.MethodGet)
	r.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			authMW,
			middleware.NewRequestLogger(logger),
			middleware.NewConnectionLimiter(
				logger,
				registry.SessionCount,
				cycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: r, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{ReadTimeout: a.config.Transport.ReadTimeout},
		a.logger,
	)

	// The session carries the identity verified by the auth middleware;
	// the client still announces readiness with an explicit register event.
	session := a.router.NewSession(reqMeta.Identity)
	conn.SetOnMessageHandler(func(ctx context.Context, c *transport.Connection, msg []byte) {
		session.HandleMessage(ctx, c, msg)
	})
	conn.SetOnCloseHandler(func(c *transport.Connection, err error) {
		session.HandleClose(c, err)
	})

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, h := range a.registry.Handles() {
		h.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
