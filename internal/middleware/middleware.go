package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"quickedit/internal/models"
)

// APIAuth validates the Token header against the API key. The key may be
// configured either in clear or as the hex SHA-256 of the token.
// An empty key disables the check.
func APIAuth(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			token := c.Request().Header.Get("Token")
			if token == "" {
				return c.JSON(http.StatusUnauthorized, models.SyncResponse{
					Success: false,
					Error:   "Token is required",
				})
			}

			if equal(token, apiKey) {
				return next(c)
			}
			h := sha256.Sum256([]byte(token))
			if equal(hex.EncodeToString(h[:]), apiKey) {
				return next(c)
			}

			return c.JSON(http.StatusUnauthorized, models.SyncResponse{
				Success: false,
				Error:   "Invalid token",
			})
		}
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequestLogger logs every request with the action resolved by the handler.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			// Set by the handler after parsing the body.
			actions, _ := c.Get("api_actions").(string)
			logger.Info("API request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("actions", actions),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()))
			return nil
		}
	}
}

// CORS configures CORS headers.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Token, Idempotency-Key")
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
