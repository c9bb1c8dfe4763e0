// Package http provides the refund triage HTTP API.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/extraction"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

// Core bundles the components the API exposes. Decider is required.
// Extractor, Duplicates, Guard and Reasons default to their standard
// implementations; the booking collaborators and Notifier are optional.
type Core struct {
	Decider    Decider
	Extractor  extraction.Extractor
	Duplicates *duplicates.Resolver
	Guard      *guard.Guard
	Reasons    triage.ReasonClassifier
	Bookings   BookingSource
	Verifier   Verifier
	Notifier   DecisionNotifier
}

// Config holds listener settings. Zero fields take defaults.
type Config struct {
	Host string
	Port int
	// BodyLimit caps request bodies, e.g. "1M".
	BodyLimit         string
	ReadHeaderTimeout time.Duration
}

func (c *Config) withDefaults() *Config {
	out := Config{Host: "127.0.0.1", Port: 8086, BodyLimit: "1M", ReadHeaderTimeout: 10 * time.Second}
	if c == nil {
		return &out
	}
	if c.Host != "" {
		out.Host = c.Host
	}
	if c.Port != 0 {
		out.Port = c.Port
	}
	if c.BodyLimit != "" {
		out.BodyLimit = c.BodyLimit
	}
	if c.ReadHeaderTimeout > 0 {
		out.ReadHeaderTimeout = c.ReadHeaderTimeout
	}
	return &out
}

// Server serves the triage API.
type Server struct {
	echo   *echo.Echo
	core   Core
	logger *zap.Logger
	config *Config
}

// NewServer builds the router. logger is required.
func NewServer(core Core, logger *zap.Logger, cfg *Config) (*Server, error) {
	if core.Decider == nil {
		return nil, errors.New("decider cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg = cfg.withDefaults()

	if core.Extractor == nil {
		core.Extractor = extraction.NewStructuredExtractor(nil, extraction.WithLogger(logger))
	}
	if core.Duplicates == nil {
		core.Duplicates = duplicates.NewResolver(logger)
	}
	if core.Guard == nil {
		core.Guard = guard.New()
	}
	if core.Reasons == nil {
		core.Reasons = reasons.NewClassifier()
	}

	s := &Server{echo: echo.New(), core: core, logger: logger, config: cfg}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(
		middleware.RequestID(),
		middleware.RecoverWithConfig(middleware.RecoverConfig{
			LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
				logger.Error("handler panic", zap.Error(err), zap.ByteString("stack", stack))
				return err
			},
		}),
		middleware.BodyLimit(cfg.BodyLimit),
		newRequestMetrics(otel.Meter(httpInstrumentationName), logger).middleware(),
		s.requestLogger(),
	)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api/v1")
	api.POST("/decisions", s.handleDecide)
	api.POST("/duplicates", s.handleDuplicates)
	api.POST("/guard", s.handleGuard)
	api.POST("/reasons/classify", s.handleClassify)
	api.POST("/extract", s.handleExtract)
}

// requestLogger logs one line per request: 5xx at error, 4xx at warn,
// the rest at debug so health and metrics scrapes stay quiet.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := zapcore.DebugLevel
			switch {
			case v.Status >= 500:
				level = zapcore.ErrorLevel
			case v.Status >= 400:
				level = zapcore.WarnLevel
			}
			if ce := s.logger.Check(level, "http request"); ce != nil {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
					zap.String("request_id", v.RequestID),
				}
				if v.Error != nil {
					fields = append(fields, zap.Error(v.Error))
				}
				ce.Write(fields...)
			}
			return nil
		},
	})
}

// handleError writes every error as an ErrorResponse. Messages of
// unexpected errors are not exposed to clients.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}

	body := ErrorResponse{Error: msg, RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		s.logger.Warn("writing error response", zap.Error(werr))
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start listens on the configured address and blocks until the server
// stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.StartServer(&http.Server{
		Addr:              addr,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	})
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
