package middleware

import (
	"errors"
	"net/http"
	"strings"

	"mimic/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware accepts HS256 bearer tokens signed with secret. The token
// subject is stored in the context under "subject".
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, responseError{"UNAUTHORIZED", "Missing authorization header"})
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, responseError{"UNAUTHORIZED", "Invalid authorization format"})
			}

			claims := &jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(tokenParts[1], claims, func(*jwt.Token) (any, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if errors.Is(err, jwt.ErrTokenExpired) {
				return c.JSON(http.StatusForbidden, responseError{"FORBIDDEN", "Token expired"})
			}
			if err != nil {
				logger.Warn("Rejected bearer token", "error", err)
				return c.JSON(http.StatusUnauthorized, responseError{"UNAUTHORIZED", "Invalid token"})
			}

			c.Set("subject", claims.Subject)
			return next(c)
		}
	}
}

// ErrorHandler renders echo errors in the API's error shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, responseError{Code: strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_")), Message: msg})
}
