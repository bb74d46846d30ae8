package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/aster/internal/appcontext"
)

// HeaderUserID is the header the gateway sets after authenticating the caller.
const HeaderUserID = "X-User-ID"

// requestID reuses the caller-supplied request id or mints one.
func requestID(req *http.Request) string {
	if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

// Context copies request identity headers into the request context so the
// rest of the stack can log and authorize without touching echo.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			reqID := requestID(req)
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			ctx := appcontext.SetRequestID(req.Context(), reqID)
			ctx = appcontext.SetUserID(ctx, req.Header.Get(HeaderUserID))
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
