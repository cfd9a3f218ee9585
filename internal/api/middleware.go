package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"premium-referral-go/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// requestLogger logs one structured line per request through the global zap logger.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				zap.L().Error("HTTP request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			zap.L().Info("HTTP request", fields...)
			return nil
		},
	})
}

// requestContext attaches caller details to the request context for downstream logging.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rc := &models.RequestContext{
				ClientIP:  c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestId: c.Response().Header().Get(echo.HeaderXRequestID),
			}
			c.SetRequest(req.WithContext(models.WithRequestContext(req.Context(), rc)))
			return next(c)
		}
	}
}

// adminAuth requires "Authorization: Bearer <token>".
func adminAuth(token string) echo.MiddlewareFunc {
	expected := []byte(token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				zap.L().Warn("Rejected admin request",
					zap.String("path", c.Path()),
					zap.String("remote_ip", c.RealIP()))
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
			}
			return next(c)
		}
	}
}
