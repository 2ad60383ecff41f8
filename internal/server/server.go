package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/parley/internal/chat"
	"github.com/nfrund/parley/internal/config"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/handlers"
	"github.com/nfrund/parley/internal/logging"
	"github.com/nfrund/parley/internal/metrics"
	"github.com/nfrund/parley/internal/middleware"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
	"github.com/nfrund/parley/internal/storage"
	"github.com/surrealdb/surrealdb.go"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	DB  *surrealdb.DB
	Cfg *config.Config

	store    domain.ChatGateway
	bridge   *pubsub.WatermillBridge
	registry *registry.Registry
	counter  *metrics.Connections

	authHandler *handlers.AuthHandler
	chatHandler *handlers.ChatHandler
	wsHandler   *chat.Handler
}

// New creates a Server wired to SurrealDB and the in-memory broadcast
// backbone, reading configuration from the environment.
func New() *Server {
	logging.New()
	cfg := config.New()

	db, err := storage.NewDB(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	return newServer(cfg, db, storage.NewSurrealStore(db))
}

// newServer does the dependency wiring shared by New and the tests, which
// inject their own config and gateway.
func newServer(cfg *config.Config, db *surrealdb.DB, store domain.ChatGateway) *Server {
	bridge := pubsub.NewWatermillBridge()
	reg := registry.New(bridge, bridge)
	reg.Start(context.Background())

	counter := metrics.NewConnections()
	fanout := chat.NewFanout(reg)
	router := chat.NewRouter(store, fanout)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
	}
	e.Use(session.Middleware(cookies))

	return &Server{
		E:           e,
		DB:          db,
		Cfg:         cfg,
		store:       store,
		bridge:      bridge,
		registry:    reg,
		counter:     counter,
		authHandler: handlers.NewAuthHandler(store),
		chatHandler: handlers.NewChatHandler(store),
		wsHandler:   chat.NewHandler(store, reg, router, counter),
	}
}

// Registry is a getter for the server's room registry, useful for testing.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}
