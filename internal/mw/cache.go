package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type snapshot struct {
	status  int
	headers http.Header
	body    []byte
}

type recorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// Cache serves repeated GET requests for the same URI from store.
// Hits carry an X-Cache: HIT header.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, found := store.Get(key); found {
			snap := v.(snapshot)
			h := c.Writer.Header()
			for k, vals := range snap.headers {
				h[k] = vals
			}
			h.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(snap.status)
			c.Writer.Write(snap.body)
			c.Abort()
			return
		}

		rec := &recorder{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		if success(rec.Status()) {
			store.Set(key, snapshot{
				status:  rec.Status(),
				headers: rec.Header().Clone(),
				body:    rec.body.Bytes(),
			}, duration)
		}
	}
}

// Invalidate evicts cached reads after a successful write. Writes under a
// batch only evict that batch's entries; any other write flushes the store.
func Invalidate(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || !success(c.Writer.Status()) {
			return
		}

		batchID := c.Param("batch_id")
		if batchID == "" {
			store.Flush()
			return
		}
		scope := "/batches/" + batchID + "/"
		for key := range store.Items() {
			if strings.Contains(key, scope) {
				store.Delete(key)
			}
		}
	}
}
