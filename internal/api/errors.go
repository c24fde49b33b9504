package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case dcerrors.ErrCodeNoFile,
		dcerrors.ErrCodeUnsupportedType,
		dcerrors.ErrCodeInvalidFileName,
		dcerrors.ErrCodeMessageEmpty,
		dcerrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case dcerrors.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case dcerrors.ErrCodeExtractionFailed:
		return http.StatusUnprocessableEntity
	case dcerrors.ErrCodeIndexLocked:
		return http.StatusConflict
	case dcerrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders every handler error as {"error": "..."}. Internal
// errors are logged and hidden behind a generic message.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal server error"

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		switch status {
		case http.StatusRequestEntityTooLarge:
			message = "file too large"
		case http.StatusTooManyRequests:
			message = "rate limit exceeded"
		default:
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		}
	default:
		if de, ok := dcerrors.As(err); ok {
			status = statusFor(de.Code)
			if status < http.StatusInternalServerError {
				message = de.Message
			}
		}
	}

	if status >= http.StatusInternalServerError {
		attrs := append([]slog.Attr{
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
		}, dcerrors.LogAttrs(err)...)
		slog.LogAttrs(c.Request().Context(), slog.LevelError, "http_request_failed", attrs...)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, ErrorResponse{Error: message})
	}
	if writeErr != nil {
		slog.Debug("http_error_write_failed", slog.String("error", writeErr.Error()))
	}
}
