package http

import (
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	middleware "task-api.com/task-api/internal/http/middlewares"
	"task-api.com/task-api/internal/services"
)

type ServerOptions struct {
	Tasks            *services.TaskService
	Verifier         middleware.TokenVerifier
	RateLimitStore   middleware.CounterStore
	RateLimit        int
	ProtectAllWrites bool
	// TrustedProxies enables X-Forwarded-For for peers in these ranges.
	TrustedProxies   []*net.IPNet
	OpenAPIEnabled   bool
	Logger           *slog.Logger
}

// NewServer assembles the echo instance. Middleware order: request id,
// access log, panic recovery, rate limit, then per-route auth. Every error
// that escapes this chain ends in the handler from NewErrorHandler.
func NewServer(opts ServerOptions) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewErrorHandler(logger)
	e.IPExtractor = ipExtractor(opts.TrustedProxies)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(logger))
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisableErrorHandler: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				"error", err,
				"path", c.Request().URL.Path,
				"stack", string(stack))
			return err
		},
	}))
	if opts.RateLimitStore != nil {
		e.Use(middleware.RateLimiter(opts.RateLimitStore, opts.RateLimit, time.Minute))
	}

	Register(e, NewHandler(opts.Tasks), middleware.RequireAuth(opts.Verifier), opts.ProtectAllWrites)
	if opts.OpenAPIEnabled {
		RegisterOpenAPI(e)
	}

	return e
}

// ipExtractor decides what RealIP returns. Forwarding headers are ignored
// unless the peer is inside one of the trusted ranges.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, ipNet := range trusted {
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	})
}
