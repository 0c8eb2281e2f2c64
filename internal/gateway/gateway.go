// ABOUTME: Gateway orchestrator that wires the store, chat service, and HTTP server
// ABOUTME: Manages startup, routing, health endpoints, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/auth"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/chat"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/config"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/dedupe"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/fanout"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/session"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/store"
)

// Gateway orchestrates the chat-gateway server components. It owns the
// store, the chat service, the session registry, and the HTTP server that
// fronts both the REST API and the websocket endpoint.
type Gateway struct {
	config     *config.Config
	store      store.Store
	chat       *chat.Service
	sessions   *session.Registry
	dedupe     *dedupe.Cache
	verifier   auth.TokenVerifier
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	sessions := session.NewRegistry(logger)
	notifier := fanout.New(sessions, logger)
	chatService := chat.NewService(st, notifier, logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		logger.Info("token auth enabled")
	} else {
		logger.Warn("auth disabled - no jwt_secret configured, trusting " + auth.ParticipantHeader)
	}

	gw := &Gateway{
		config:   cfg,
		store:    st,
		chat:     chatService,
		sessions: sessions,
		dedupe:   dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize),
		verifier: verifier,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP mux. Health endpoints are unauthenticated; the
// API and websocket endpoints require a resolved participant identity.
func (g *Gateway) routes() http.Handler {
	requireAuth := auth.Middleware(g.verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("/api/conversations", g.handleListConversations)
	api.HandleFunc("/api/messages", g.handleMessages)
	api.HandleFunc("/api/messages/read", g.handleMarkRead)
	api.HandleFunc("/api/messages/unread-count", g.handleUnreadCount)
	api.HandleFunc("/api/messages/since", g.handleMessagesSince)
	api.HandleFunc("/ws", g.handleWebsocket)

	mux.Handle("/api/", requireAuth(api))
	mux.Handle("/ws", requireAuth(api))

	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. A graceful shutdown is attempted on cancellation.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case serverErr = <-errCh:
		if serverErr != nil {
			g.logger.Error("HTTP server failed", "error", serverErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server, closes live sessions, and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.sessions.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the gateway is serving, along with the
// number of live realtime sessions.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Count())
}
