// Package server exposes host registration over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marksidell/dynips/internal/registrar"
)

// Registrar registers one host check-in.
type Registrar interface {
	Register(ctx context.Context, req registrar.Request) (registrar.Result, error)
}

type Handler struct {
	reg       Registrar
	log       *slog.Logger
	startTime time.Time
}

func NewHandler(reg Registrar, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{reg: reg, log: log, startTime: time.Now().UTC()}
}

// RegisterRoutes sets up the registration and health routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/update", h.Update)
}

// Update handles GET /update?host=&key=&ip=&expire=no.
func (h *Handler) Update(c *gin.Context) {
	req := registrar.Request{
		ClientIP: c.ClientIP(),
		Host:     c.Query("host"),
		Key:      c.Query("key"),
		IP:       c.Query("ip"),
		NoExpire: c.Query("expire") == "no",
	}

	h.log.Info("registration request",
		"request_id", c.GetString(requestIDKey),
		"client_ip", req.ClientIP,
		"host", req.Host,
		"key", mask(req.Key),
		"ip", req.IP,
		"no_expire", req.NoExpire,
	)

	res, err := h.reg.Register(c.Request.Context(), req)
	if err != nil {
		e := registrar.AsError(err)
		c.JSON(e.Kind.Status(), gin.H{"error": e.Error()})
		return
	}

	h.log.Info("registration result",
		"request_id", c.GetString(requestIDKey),
		"host", res.Host,
		"action", res.Action,
		"new_ip", res.NewIP,
	)
	c.JSON(http.StatusOK, res)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	return "****"
}

const requestIDKey = "request_id"

// RequestID tags each request with an ID, reusing X-Request-ID when the
// client sends one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// Logging logs one line per request at a level chosen by status code. The
// query string is left out since it carries the key.
func Logging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// NewRouter builds the engine with recovery, request IDs and logging.
// Forwarding headers are honoured only from trustedProxies; with none, the
// client IP is the connection's remote address.
func NewRouter(h *Handler, log *slog.Logger, debug bool, trustedProxies []string) (*gin.Engine, error) {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if len(trustedProxies) == 0 {
		trustedProxies = nil
	}
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), RequestID(), Logging(log))
	h.RegisterRoutes(r)
	return r, nil
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
