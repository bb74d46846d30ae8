package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/aster/internal/appcontext"
	"github.com/harborcrm/aster/internal/tracing"
)

// ErrorResponse is the JSON body returned for every failed request. Internal
// error details never leak past the generic message; diagnostics travel via
// request and trace ids.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// classify maps an error to the status code, client message, and metadata
// to surface. Anything unrecognized is treated as a 500 with a generic body.
func classify(err error) (int, string, map[string]any) {
	if httperror.IsHTTPError(err) {
		httperr := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), httperr.Error(), httperr.Meta
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		message := http.StatusText(echoErr.Code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		}
		return echoErr.Code, message, map[string]any{}
	}

	return http.StatusInternalServerError, "Internal Server Error", map[string]any{}
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		code, message, meta := classify(err)

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": code,
		})
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is returning an error")
		}

		if c.Response().Committed {
			return
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: appcontext.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
