package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter("X-Operator-ID", rate.Limit(0.001), 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(operator string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		if operator != "" {
			req.Header.Set("X-Operator-ID", operator)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"), "burst exhausted")
	assert.Equal(t, http.StatusOK, do("bob"), "operators are limited separately")
	assert.Equal(t, http.StatusOK, do(""), "anonymous clients fall back to their IP")
}

func TestCache(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.Use(Invalidate(store))
	r.GET("/batches/:batch_id/cycles/:id", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	r.PUT("/batches/:batch_id/cycles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/schedule", func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(method, path, nil)
		r.ServeHTTP(w, req)
		return w
	}

	first := send(http.MethodGet, "/batches/1/cycles/1")
	assert.JSONEq(t, `{"calls":1}`, first.Body.String())
	assert.Empty(t, first.Header().Get("X-Cache"))
	second := send(http.MethodGet, "/batches/1/cycles/1")
	assert.JSONEq(t, `{"calls":1}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))

	assert.JSONEq(t, `{"calls":2}`, send(http.MethodGet, "/batches/2/cycles/1").Body.String())

	send(http.MethodPut, "/batches/1/cycles/1")
	assert.JSONEq(t, `{"calls":3}`, send(http.MethodGet, "/batches/1/cycles/1").Body.String(), "writes evict their batch")
	assert.JSONEq(t, `{"calls":2}`, send(http.MethodGet, "/batches/2/cycles/1").Body.String(), "other batches stay cached")

	send(http.MethodPost, "/schedule")
	assert.JSONEq(t, `{"calls":4}`, send(http.MethodGet, "/batches/2/cycles/1").Body.String(), "unscoped writes flush everything")

	send(http.MethodGet, "/missing")
	send(http.MethodGet, "/missing")
	assert.Equal(t, 6, calls, "errors are not cached")
}
