package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "scheduler",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func call(t *testing.T, header string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := AuthMiddleware("secret")(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, h(c))
	return rec, c
}

func TestAuthMiddleware(t *testing.T) {
	rec, c := call(t, "Bearer "+token(t, "secret", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "scheduler", c.Get("subject"))

	rec, _ = call(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = call(t, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = call(t, "Bearer "+token(t, "other", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = call(t, "Bearer "+token(t, "secret", time.Now().Add(-time.Hour)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
