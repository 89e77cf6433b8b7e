// Package server serves the generated feed files for local previews.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/logger"

	"github.com/gin-gonic/gin"
)

// ErrPortInUse is returned by Serve when another process holds the port.
var ErrPortInUse = errors.New("port already in use")

const (
	rssContentType  = "application/rss+xml; charset=utf-8"
	shutdownTimeout = 5 * time.Second
)

// Server is a static file server over the feed directory.
type Server struct {
	addr   string
	dir    string
	log    logger.Logger
	engine *gin.Engine
}

// New builds a server for dir listening on port on all interfaces.
func New(dir string, port int, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr: net.JoinHostPort("", strconv.Itoa(port)),
		dir:  dir,
		log:  logger.Ensure(log),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), feedHeaders())
	r.StaticFS("/", gin.Dir(dir, true))
	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// feedHeaders allows cross-origin reads, answers preflight requests and labels feeds as RSS.
func feedHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		if strings.HasSuffix(c.Request.URL.Path, ".xml") {
			h.Set("Content-Type", rssContentType)
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.DebugObj("request served", "http_request", map[string]any{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// Serve listens until ctx is cancelled, then shuts down gracefully. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("listen %s: %w", s.addr, ErrPortInUse)
		}
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	s.log.InfoObj("serving feeds", "server_start", map[string]any{
		"addr": ln.Addr().String(),
		"dir":  s.dir,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	s.log.InfoObj("server stopped", "server_stop", nil)
	return nil
}
