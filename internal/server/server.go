package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"

	"github.com/jeffypooo/lanmon/internal/auth"
	"github.com/jeffypooo/lanmon/internal/config"
	"github.com/jeffypooo/lanmon/internal/hostaddr"
	"github.com/jeffypooo/lanmon/internal/stream"
	"github.com/jeffypooo/lanmon/internal/web"
)

// Sampler is the snapshot source shared by the pull endpoint and sessions.
type Sampler = stream.Sampler

// Server exposes the pull endpoint, the subscription endpoint and the
// operator page.
type Server struct {
	cfg      *config.Config
	echo     *echo.Echo
	auth     *auth.Authenticator
	sampler  Sampler
	sessions *stream.Registry
	resolver *hostaddr.Resolver
	logger   *zap.Logger
}

func New(cfg *config.Config, sampler Sampler, resolver *hostaddr.Resolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = hostaddr.NewResolver()
	}

	s := &Server{
		cfg:      cfg,
		echo:     echo.New(),
		auth:     auth.New(cfg.Token()),
		sampler:  sampler,
		sessions: stream.NewRegistry(),
		resolver: resolver,
		logger:   logger,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(cfg.LogLevel()))

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"*"},
		AllowHeaders: []string{"*"},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		// Only the path is logged: the query string carries the token.
		LogURIPath:  true,
		LogStatus:   true,
		LogRemoteIP: true,
		LogLatency:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request",
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.String("remote_ip", v.RemoteIP),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	streamHandler := stream.NewHandler(s.auth, sampler, cfg.Interval(), s.sessions, logger)

	e.GET("/", s.rootHandler)
	e.GET("/healthz", healthHandler)
	e.GET("/metrics", s.metricsHandler)
	e.GET("/ws", echo.WrapHandler(streamHandler))

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ActiveSessions is the number of subscriptions currently streaming.
func (s *Server) ActiveSessions() int {
	return s.sessions.Len()
}

// Listen binds the configured address. A failure here is fatal to startup.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	return ln, nil
}

// Serve serves HTTP on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.echo.Listener = ln
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every open subscription.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := s.sessions.CloseAll(ctx); err != nil {
		return fmt.Errorf("closing subscriptions: %w", err)
	}
	return nil
}

// LANAddress is the address operators should share with viewers.
func (s *Server) LANAddress(ctx context.Context) string {
	return s.resolver.ResolveLANAddress(ctx)
}

func (s *Server) rootHandler(c echo.Context) error {
	ctx := c.Request().Context()
	page := web.Page{LANAddr: s.LANAddress(ctx), Port: s.cfg.Port()}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return web.Dashboard(page).Render(ctx, c.Response())
}

func (s *Server) metricsHandler(c echo.Context) error {
	if !s.auth.Authenticate(c.QueryParam("token")) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
	}
	return c.JSON(http.StatusOK, s.sampler.Sample(c.Request().Context()))
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func echoLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
