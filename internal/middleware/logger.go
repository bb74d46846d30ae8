package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/aster/internal/appcontext"
)

// Logger emits one structured log line per request. It runs after Context, so
// request and user ids come from the request context rather than headers.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()

			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    appcontext.GetRequestID(ctx),
				"user_id":       appcontext.GetUserID(ctx),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"route":         c.Path(),
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": time.Since(start).String(),
				"response_size": res.Size,
			})

			switch {
			case res.Status >= 500:
				log.Error("Request")
			case res.Status >= 400:
				log.Warn("Request")
			default:
				log.Info("Request")
			}

			return nil
		}
	}
}
