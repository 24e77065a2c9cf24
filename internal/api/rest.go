package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Tikfetch/internal/api/downloads"
	"github.com/hbomb79/Tikfetch/internal/api/health"
	"github.com/hbomb79/Tikfetch/internal/api/pages"
	"github.com/hbomb79/Tikfetch/internal/fetch"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logger.Get("API")

const msgInternalError = "Internal server error. Please try again."

type (
	// RestConfig holds the listen address. When Port is set it replaces
	// the port portion of HostAddr.
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:5000" validate:"required,hostname_port"`
		Port     string `yaml:"port" env:"PORT" validate:"omitempty,numeric"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes exposed by the service and to render failures as the
	// index page, rather than as bare error responses.
	RestGateway struct {
		config             *RestConfig
		ec                 *echo.Echo
		downloadController controller
		healthController   controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The gatherer provided is
// exposed on /metrics.
func NewRestGateway(
	config *RestConfig,
	fetcher downloads.Fetcher,
	cleanup downloads.CleanupScheduler,
	gatherer prometheus.Gatherer,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Renderer = pages.NewRenderer()
	ec.HTTPErrorHandler = handleError

	validate := NewValidator()
	gateway := &RestGateway{
		config:             config,
		ec:                 ec,
		downloadController: downloads.New(validate, fetcher, cleanup),
		healthController:   health.New(),
	}

	ec.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	ec.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:     true,
		LogURI:        true,
		LogStatus:     true,
		LogLatency:    true,
		LogRequestID:  true,
		LogError:      true,
		HandleError:   true,
		LogValuesFunc: logRequest,
	}))
	ec.Use(middleware.Recover())

	pages.SetRoutes(ec)
	gateway.downloadController.SetRoutes(ec.Group("/download"))
	gateway.healthController.SetRoutes(ec.Group("/health"))
	ec.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return gateway
}

// NewValidator returns a validator with the custom tags used
// by the request DTOs registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	if err := validate.RegisterValidation("tiktokurl", func(fl validator.FieldLevel) bool {
		return fetch.ValidateURL(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return validate
}

// Addr returns the address the gateway listens on.
func (config *RestConfig) Addr() string {
	if config.Port == "" {
		return config.HostAddr
	}

	host, _, err := net.SplitHostPort(config.HostAddr)
	if err != nil {
		host = config.HostAddr
	}
	return net.JoinHostPort(host, config.Port)
}

func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := gateway.config.Addr()
		log.Emit(logger.INFO, "Listening on %s\n", addr)
		if err := gateway.ec.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// handleError renders the index page for any error which escapes a handler.
// Unknown routes are rendered with their status code, anything else is
// treated as an internal error.
func handleError(err error, ec echo.Context) {
	if ec.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError {
		if renderErr := pages.Index(ec, httpErr.Code, ""); renderErr != nil {
			log.Emit(logger.ERROR, "Failed to render error page: %v\n", renderErr)
		}
		return
	}

	log.Emit(logger.ERROR, "Request %s %s failed: %v\n", ec.Request().Method, ec.Request().URL.Path, err)
	if renderErr := pages.Index(ec, http.StatusInternalServerError, msgInternalError); renderErr != nil {
		log.Emit(logger.ERROR, "Failed to render error page: %v\n", renderErr)
	}
}

func logRequest(_ echo.Context, v middleware.RequestLoggerValues) error {
	status := logger.VERBOSE
	switch {
	case v.Status >= http.StatusInternalServerError:
		status = logger.ERROR
	case v.Status >= http.StatusBadRequest:
		status = logger.WARNING
	}

	if v.Error != nil {
		log.Emit(status, "[%s] %s %s -> %d (%s): %v\n", v.RequestID, v.Method, v.URI, v.Status, v.Latency, v.Error)
	} else {
		log.Emit(status, "[%s] %s %s -> %d (%s)\n", v.RequestID, v.Method, v.URI, v.Status, v.Latency)
	}

	return nil
}
