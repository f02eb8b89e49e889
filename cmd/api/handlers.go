package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediaqueue/internal/intake"
)

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "database unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// handleSubmitAd answers 201 when a swipe was created, 200 otherwise.
func (s *Server) handleSubmitAd(c echo.Context) error {
	var req intake.AdRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := s.intake.SubmitAd(c.Request().Context(), req)
	if err != nil {
		return intakeError(err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

func (s *Server) handleRetrySwipe(c echo.Context) error {
	res, err := s.intake.RetrySwipe(c.Request().Context(), c.Param("id"))
	if err != nil {
		return intakeError(err)
	}
	return c.JSON(http.StatusAccepted, res)
}

func (s *Server) handleSubmitResearchFile(c echo.Context) error {
	var req intake.FileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := s.intake.SubmitResearchFile(c.Request().Context(), req)
	if err != nil {
		return intakeError(err)
	}
	return c.JSON(http.StatusAccepted, res)
}

func (s *Server) handleJob(c echo.Context) error {
	job, err := s.intake.Job(c.Request().Context(), c.Param("id"))
	if err != nil {
		return intakeError(err)
	}
	return c.JSON(http.StatusOK, job)
}
