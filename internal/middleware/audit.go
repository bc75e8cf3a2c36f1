package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuditMiddleware writes an audit record for state-changing requests. It is
// mounted on the admin routes so moderation and account actions are traceable
// to the admin that performed them.
type AuditMiddleware struct {
	logger *zap.Logger
}

func NewAuditMiddleware(logger *zap.Logger) *AuditMiddleware {
	return &AuditMiddleware{logger: logger.Named("audit")}
}

// AuditRequest records method, route, target id, actor and outcome after the
// handler ran. Reads are skipped.
func (m *AuditMiddleware) AuditRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			method := c.Request().Method
			if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
				return err
			}

			fields := []zap.Field{
				zap.String("action", method+" "+c.Path()),
				zap.Int("status", c.Response().Status),
				zap.String("ip", c.RealIP()),
			}
			if target := c.Param("id"); target != "" {
				fields = append(fields, zap.String("target_id", target))
			}
			if identity := Identity(c); identity != nil {
				fields = append(fields, zap.String("actor_id", identity.ID.String()), zap.Bool("actor_admin", identity.IsAdmin))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			if c.Response().Status >= http.StatusBadRequest || err != nil {
				m.logger.Warn("audited request rejected", fields...)
			} else {
				m.logger.Info("audited request", fields...)
			}
			return err
		}
	}
}
