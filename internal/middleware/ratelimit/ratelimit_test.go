package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RejectsAfterBurst(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	t.Cleanup(rl.Stop)

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	codes := make([]int, 0, 3)
	for range 3 {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{200, 200, fiber.StatusTooManyRequests}, codes)
}

func TestAllow_RefillsAndEvicts(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	t.Cleanup(rl.Stop)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("10.0.0.1"))

	now = now.Add(idleAfter + time.Second)
	rl.evictIdle()
	assert.Empty(t, rl.visitors)
}
