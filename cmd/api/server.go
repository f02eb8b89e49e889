package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/intake"
)

// Intake is the submission surface the handlers need.
type Intake interface {
	SubmitAd(ctx context.Context, req intake.AdRequest) (*intake.AdResult, error)
	SubmitResearchFile(ctx context.Context, req intake.FileRequest) (*intake.FileResult, error)
	RetrySwipe(ctx context.Context, swipeID string) (*intake.AdResult, error)
	Job(ctx context.Context, jobID string) (*db.MediaJob, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type Server struct {
	*echo.Echo
	intake Intake
	db     Pinger
}

func NewServer(svc Intake, pinger Pinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}

	s := &Server{Echo: e, intake: svc, db: pinger}
	s.setupMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.Use(middleware.BodyLimit("1M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {
	s.GET("/healthz", s.handleHealth)

	api := s.Group("/api")
	api.POST("/swipes", s.handleSubmitAd)
	api.POST("/swipes/:id/retry", s.handleRetrySwipe)
	api.POST("/research-files", s.handleSubmitResearchFile)
	api.GET("/jobs/:id", s.handleJob)
}

// intakeError maps service errors onto HTTP statuses.
func intakeError(err error) error {
	switch {
	case errors.Is(err, intake.ErrBadRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, intake.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, intake.ErrNotFailed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		slog.Error("intake request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
