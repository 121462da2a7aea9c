package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit_EnvironmentBypass(t *testing.T) {
	for _, env := range []string{"test", "development", ""} {
		t.Run("env="+env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			allowed, err := CheckRateLimit(context.Background(), nil, "replies", "1", 1, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		})
	}
}

func TestCheckRateLimit_NilRedis(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	allowed, err := CheckRateLimit(context.Background(), nil, "replies", "1", 1, time.Minute)
	assert.ErrorIs(t, err, errNoRateLimitStore)
	assert.False(t, allowed)
}

func TestCheckRateLimit_WindowCounting(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "replies", "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := CheckRateLimit(ctx, rdb, "replies", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = CheckRateLimit(ctx, rdb, "replies", "user:2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "limits are tracked per caller")

	assert.Equal(t, time.Minute, mr.TTL("rl:replies:user:1"))

	mr.FastForward(time.Minute + time.Second)
	allowed, err = CheckRateLimit(ctx, rdb, "replies", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "window resets after expiry")
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, rdb := newRedis(t)

	app := fiber.New()
	app.Post("/limited", func(c *fiber.Ctx) error {
		c.Locals(UserIDLocal, uint(9))
		return c.Next()
	}, RateLimit(rdb, 2, time.Minute, "reactions"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/limited", nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRateLimitWithPolicy_StoreDown(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	tests := []struct {
		name   string
		policy FailPolicy
		want   int
	}{
		{"fail open", FailOpen, http.StatusOK},
		{"fail closed", FailClosed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/x", RateLimitWithPolicy(rdb, 1, time.Minute, tt.policy), ok)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
