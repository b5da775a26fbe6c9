package roster

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluesky-social/roster/users"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Config struct {
	Logger        *slog.Logger
	Bind          string
	MetricsListen string
}

type Server struct {
	echo          *echo.Echo
	httpd         *http.Server
	metricsServer *http.Server

	db    *gorm.DB
	store *users.CachedStore
	log   *slog.Logger
}

func NewServer(db *gorm.DB, store *users.CachedStore, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("system", "roster")
	}

	e := echo.New()
	e.HideBanner = true

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		echo:  e,
		db:    db,
		store: store,
		log:   logger,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}
	if config.MetricsListen != "" {
		srv.metricsServer = &http.Server{
			Addr: config.MetricsListen,
		}
	}

	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("roster"))
	e.Use(middleware.BodyLimit("64K"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/health", srv.HandleHealthCheck)

	e.GET("/users", srv.HandleListUsers)
	e.POST("/users", srv.HandleCreateUser)
	e.GET("/users/:id", srv.HandleGetUser)
	e.PUT("/users/:id", srv.HandleUpdateUser)
	e.DELETE("/users/:id", srv.HandleDeleteUser)

	// cache administration
	e.POST("/users/:id/refresh", srv.HandleRefreshUser)
	e.POST("/cache/invalidate", srv.HandleInvalidateCache)

	return srv, nil
}

// RunAPI starts the HTTP listener and blocks until the server is shut down.
func (srv *Server) RunAPI() error {
	srv.log.Info("starting API server", "bind", srv.httpd.Addr)
	if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunMetrics starts the metrics listener, serving prometheus metrics and
// pprof. No-op if the server was configured without a metrics address.
func (srv *Server) RunMetrics() error {
	if srv.metricsServer == nil {
		return nil
	}
	// nil http.Server handler means DefaultServeMux, which net/http/pprof
	// registers against
	http.Handle("/metrics", promhttp.Handler())
	srv.log.Info("starting metrics server", "bind", srv.metricsServer.Addr)
	if err := srv.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *Server) Shutdown(ctx context.Context) error {
	errs := errgroup.Group{}
	errs.Go(func() error {
		srv.httpd.SetKeepAlivesEnabled(false)
		if err := srv.httpd.Shutdown(ctx); err != nil {
			srv.log.Error("error shutting down API server", "error", err)
			return err
		}
		return nil
	})

	errs.Go(func() error {
		if srv.metricsServer != nil {
			srv.metricsServer.SetKeepAlivesEnabled(false)
			if err := srv.metricsServer.Shutdown(ctx); err != nil {
				srv.log.Error("error shutting down metrics server", "error", err)
				return err
			}
		}
		return nil
	})

	return errs.Wait()
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	errStr := "InternalServerError"
	msg := "internal server error"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		switch code {
		case http.StatusBadRequest:
			errStr = "BadRequest"
		case http.StatusNotFound:
			errStr = "NotFound"
		case http.StatusMethodNotAllowed:
			errStr = "MethodNotAllowed"
		}
	}

	if code >= 500 {
		srv.log.Error("handler error", "path", c.Path(), "error", err)
	}

	if !c.Response().Committed {
		if err := c.JSON(code, GenericError{Error: errStr, Message: msg}); err != nil {
			srv.log.Error("failed to write error response", "error", err)
		}
	}
}
