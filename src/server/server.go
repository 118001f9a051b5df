// Package server exposes the public ticket API over HTTP, plus live ticket
// updates over WebSocket and server-sent events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"freeda-support/src/app"
	"freeda-support/src/logger"
	"freeda-support/src/orchestrator"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP surface of the support backend.
type Server struct {
	app      *app.App
	orch     *orchestrator.Orchestrator
	log      logger.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	createLimiter  *ipRateLimiter
	messageLimiter *ipRateLimiter
}

// New builds the router for a.
func New(a *app.App) *Server {
	s := &Server{
		app:            a,
		orch:           a.Orchestrator,
		log:            a.Logger,
		createLimiter:  newIPRateLimiter(a.Config.RateLimitPerMinute, a.Clock.Now),
		messageLimiter: newIPRateLimiter(a.Config.RateLimitPerMinute, a.Clock.Now),
	}
	allowOrigin := originPolicy(a.Config.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || allowOrigin(origin)
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(corsMiddleware(s.app.Config.AllowedOrigins))

	r.GET("/health", s.health)

	public := r.Group("/public/tickets")
	public.POST("", s.createLimiter.middleware(), s.createTicket)
	public.GET("/:id", s.getTicket)
	public.POST("/:id/messages", s.messageLimiter.middleware(), s.addMessage)
	public.GET("/:id/status", s.getStatus)
	public.PATCH("/:id/status", s.updateStatus)
	public.GET("/:id/events", s.streamEvents)

	r.GET("/ws/:id", s.serveWebSocket)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE streams end with ctx instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("[HTTP] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("[HTTP] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("[HTTP] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	h := s.app.Health(c.Request.Context())
	status := http.StatusOK
	if h.Status == app.HealthDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}
