// Package callback is the HTTP side of interactive authorization. The
// provider redirects the user's browser here and the authorization window
// posts its messages here; each request is routed to the waiting flow by
// its OAuth state.
package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/gin-gonic/gin"
)

// DefaultMaxOpen caps concurrently open authorization windows.
const DefaultMaxOpen = 256

const closePage = `<!doctype html><html><head><title>calsync</title></head>` +
	`<body><p>%s</p><script>window.close()</script></body></html>`

type Server struct {
	addr    string
	maxOpen int
	logger  logging.Logger
	engine  *gin.Engine

	mu       sync.Mutex
	byState  map[string]*window
	open     int
	shutdown bool
}

type Option func(*Server)

func WithMaxOpen(n int) Option { return func(s *Server) { s.maxOpen = n } }

func NewServer(addr string, logger logging.Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:    addr,
		maxOpen: DefaultMaxOpen,
		logger:  logger.With("module", "callback"),
		byState: make(map[string]*window),
	}
	for _, o := range opts {
		o(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.RegisterRoutes(s.engine)
	return s
}

func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	oauth := router.Group("/oauth")
	{
		oauth.GET("/callback", s.providerRedirect)
		oauth.POST("/message", s.windowMessage)
		oauth.POST("/complete", s.refreshHint)
		oauth.GET("/cancel", s.cancel)
	}
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// query strings carry authorization codes and are not logged
		s.logger.Debug(c.Request.Context(), "callback request",
			"method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) providerRedirect(c *gin.Context) {
	state := c.Query("state")
	w, ok := s.lookup(state)
	if !ok {
		s.page(c, http.StatusBadRequest, "This authorization link has expired. Please start again.")
		return
	}

	msg := authflow.Message{Kind: authflow.MessageSuccess, Code: c.Query("code"), State: state}
	if e := c.Query("error"); e != "" || msg.Code == "" {
		reason := e
		if d := c.Query("error_description"); d != "" && reason != "" {
			reason += ": " + d
		}
		if reason == "" {
			reason = "provider returned no authorization code"
		}
		msg = authflow.Message{Kind: authflow.MessageError, State: state, Error: reason}
	}
	if !w.deliver(msg) {
		s.page(c, http.StatusServiceUnavailable, "Authorization is busy. Please try again.")
		return
	}
	if msg.Kind == authflow.MessageError {
		s.page(c, http.StatusOK, "Authorization was not granted. You can close this window.")
		return
	}
	s.page(c, http.StatusOK, "Calendar connected. You can close this window.")
}

func (s *Server) windowMessage(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := authflow.DecodeMessage(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.route(c, msg)
}

func (s *Server) refreshHint(c *gin.Context) {
	s.route(c, authflow.Message{Kind: authflow.MessageRefreshHint, State: c.Query("state")})
}

func (s *Server) route(c *gin.Context, msg authflow.Message) {
	w, ok := s.lookup(msg.State)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown authorization state"})
		return
	}
	if !w.deliver(msg) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "authorization window is busy"})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) cancel(c *gin.Context) {
	w, ok := s.lookup(c.Query("state"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown authorization state"})
		return
	}
	w.userClosed()
	s.page(c, http.StatusOK, "Authorization cancelled.")
}

func (s *Server) page(c *gin.Context, status int, text string) {
	c.Data(status, "text/html; charset=utf-8", []byte(fmt.Sprintf(closePage, text)))
}

// Run serves until ctx is done, then shuts down gracefully and blocks any
// further windows.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "callback server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.block()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.block()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("callback shutdown: %w", err)
	}
	s.logger.Info(ctx, "callback server stopped")
	return nil
}

func (s *Server) block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}
