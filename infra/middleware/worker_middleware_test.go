package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint_server/pkg/apperr"
)

const testSecret = "test-secret"

func newTestApp(h ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	for _, m := range h {
		app.Use(m)
	}
	app.Get("/ok", func(c *fiber.Ctx) error {
		subject, _ := c.Locals("subject").(string)
		return c.JSON(fiber.Map{"subject": subject})
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return apperr.NotFound("complaint")
	})
	return app
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "analyst",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	app := newTestApp(JWTAuth(AuthConfig{Secret: testSecret}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", 401},
		{"wrong scheme", "Basic abc", 401},
		{"garbage token", "Bearer not-a-jwt", 401},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)), 401},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(-time.Hour)), 401},
		{"wrong alg", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), time.Now().Add(time.Hour)), 401},
		{"valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(time.Hour)), 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ok", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestJWTAuthSetsSubject(t *testing.T) {
	app := newTestApp(JWTAuth(AuthConfig{Secret: testSecret}))

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(time.Hour)))
	resp, err := app.Test(req)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"subject":"analyst"}`, string(body))
}

func TestErrorHandlerMapsAppError(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, apperr.CodeNotFound, body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	app := newTestApp(rl.Handler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	now = now.Add(time.Second)
	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRateLimiterDisabled(t *testing.T) {
	app := newTestApp(NewRateLimiter(0, 1).Handler())
	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}
}

func TestRecoverReturnsInternalError(t *testing.T) {
	app := newTestApp(Recover())
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("nil map write")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, apperr.CodeInternalError, body.Error.Code)

	resp, err = app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
