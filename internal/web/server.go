// Package web is the admin API: user management, token and position
// inspection, and the manual-review surface for stuck positions. The core
// never writes users; this boundary does.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/storage"
)

// Server is the admin HTTP server.
type Server struct {
	users     storage.UserStore
	tokens    storage.TokenStore
	positions storage.PositionStore
	log       zerolog.Logger
}

// Options for creating a Server.
type Options struct {
	Users     storage.UserStore
	Tokens    storage.TokenStore
	Positions storage.PositionStore
	Logger    zerolog.Logger
}

// NewServer creates the admin server.
func NewServer(opts Options) *Server {
	return &Server{
		users:     opts.Users,
		tokens:    opts.Tokens,
		positions: opts.Positions,
		log:       opts.Logger.With().Str("component", "admin").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/users", s.createUser)
		api.GET("/users", s.listUsers)
		api.POST("/users/:id/activate", s.setActive(true))
		api.POST("/users/:id/deactivate", s.setActive(false))
		api.GET("/users/:id/positions", s.listUserPositions)
		api.GET("/users/:id/stats", s.userStats)

		api.GET("/tokens", s.listTokens)
		api.GET("/positions/stale", s.listStalePositions)
	}
	return r
}

// Run serves the admin API until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("admin server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
