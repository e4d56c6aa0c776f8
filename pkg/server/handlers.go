// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/binkynet/PwmPool/pkg/pwm"
)

type errorResponse struct {
	Error string `json:"error"`
}

type allocateRequest struct {
	Pin         *pwm.PinID      `json:"pin"`
	Persistence pwm.Persistence `json:"persistence"`
}

type allocateResponse struct {
	Handle pwm.Handle `json:"handle"`
}

type dutyRequest struct {
	Duty *float64 `json:"duty"`
}

type pinRequest struct {
	Pin *pwm.PinID `json:"pin"`
}

type periodRequest struct {
	PeriodUs *int `json:"period_us,omitempty"`
	PeriodMs *int `json:"period_ms,omitempty"`
}

type periodResponse struct {
	PeriodUs int `json:"period_us"`
	PeriodMs int `json:"period_ms"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "OK", Version: s.ProgramVersion})
}

func (s *Server) handleGetPool(c echo.Context) error {
	st, err := s.service.Snapshot(c.Request().Context())
	if err != nil {
		return s.replyError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleGetPeriod(c echo.Context) error {
	us, err := s.service.PeriodUs(c.Request().Context())
	if err != nil {
		return s.replyError(c, err)
	}
	return c.JSON(http.StatusOK, periodResponse{PeriodUs: us, PeriodMs: us / 1000})
}

func (s *Server) handleAllocate(c echo.Context) error {
	var req allocateRequest
	if err := c.Bind(&req); err != nil {
		return s.replyError(c, errors.Wrap(pwm.ErrInvalidParameter, err.Error()))
	}
	if req.Pin == nil {
		return s.replyError(c, errors.Wrap(pwm.ErrInvalidParameter, "pin missing"))
	}
	h, err := s.service.Allocate(c.Request().Context(), *req.Pin, req.Persistence)
	if err != nil {
		return s.replyError(c, err)
	}
	return c.JSON(http.StatusCreated, allocateResponse{Handle: h})
}

func (s *Server) handleGetChannel(c echo.Context) error {
	return s.withHandle(c, func(ctx context.Context, h pwm.Handle) error {
		info, err := s.service.Channel(ctx, h)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, info)
	})
}

func (s *Server) handleRelease(c echo.Context) error {
	return s.withHandle(c, func(ctx context.Context, h pwm.Handle) error {
		if err := s.service.Release(ctx, h); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func (s *Server) handleWrite(c echo.Context) error {
	return s.withHandle(c, func(ctx context.Context, h pwm.Handle) error {
		var req dutyRequest
		if err := c.Bind(&req); err != nil {
			return errors.Wrap(pwm.ErrInvalidParameter, err.Error())
		}
		if req.Duty == nil {
			return errors.Wrap(pwm.ErrInvalidParameter, "duty missing")
		}
		if err := s.service.Write(ctx, h, *req.Duty); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func (s *Server) handleRedirect(c echo.Context) error {
	return s.withHandle(c, func(ctx context.Context, h pwm.Handle) error {
		var req pinRequest
		if err := c.Bind(&req); err != nil {
			return errors.Wrap(pwm.ErrInvalidParameter, err.Error())
		}
		if req.Pin == nil {
			return errors.Wrap(pwm.ErrInvalidParameter, "pin missing")
		}
		if err := s.service.Redirect(ctx, h, *req.Pin); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func (s *Server) handleSetPeriod(c echo.Context) error {
	return s.withHandle(c, func(ctx context.Context, h pwm.Handle) error {
		var req periodRequest
		if err := c.Bind(&req); err != nil {
			return errors.Wrap(pwm.ErrInvalidParameter, err.Error())
		}
		var err error
		switch {
		case req.PeriodUs != nil && req.PeriodMs != nil:
			return errors.Wrap(pwm.ErrInvalidParameter, "period_us and period_ms are exclusive")
		case req.PeriodUs != nil:
			err = s.service.SetPeriodUs(ctx, h, *req.PeriodUs)
		case req.PeriodMs != nil:
			err = s.service.SetPeriod(ctx, h, *req.PeriodMs)
		default:
			return errors.Wrap(pwm.ErrInvalidParameter, "period missing")
		}
		if err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
}

// withHandle parses the handle parameter and runs the given function with it.
// Errors returned by the function are mapped to an HTTP status.
func (s *Server) withHandle(c echo.Context, fn func(ctx context.Context, h pwm.Handle) error) error {
	h, err := pwm.ParseHandle(c.Param("handle"))
	if err != nil {
		return s.replyError(c, err)
	}
	if err := fn(c.Request().Context(), h); err != nil {
		return s.replyError(c, err)
	}
	return nil
}

// replyError sends the given error with a status code matching its cause.
func (s *Server) replyError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	} else {
		s.log.Debug().Err(err).Str("path", c.Path()).Msg("Request rejected")
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case pwm.IsInvalidParameter(err):
		return http.StatusBadRequest
	case pwm.IsPinInUse(err):
		return http.StatusConflict
	case pwm.IsNoChannelsAvailable(err):
		return http.StatusServiceUnavailable
	case pwm.IsStaleHandle(err):
		return http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
