package middlewares

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

// ScopeFunc picks the visibility scope of a cached response for the caller.
type ScopeFunc func(actor *services.Actor) string

func PropertyScope(actor *services.Actor) string { return actor.PropertyScope() }

func InquiryScope(actor *services.Actor) string { return actor.InquiryScope() }

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves GET responses from the store. Only 2xx responses are stored, and only
// when the namespace was not invalidated while the handler ran. Store failures are
// logged and the request is handled as a miss.
func Cache(store *cache.Cache, namespace string, ttl time.Duration, scope ScopeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cache.Key(namespace, scope(CurrentActor(c)), c.Request.URL.Path, c.Request.URL.Query())
		reqCtx := c.Request.Context()

		raw, hit, err := store.Get(reqCtx, key)
		if err != nil {
			utils.ErrorLogger.WithField("key", key).WithError(err).Warn("Cache read failed")
		}
		if hit {
			var entry cachedResponse
			if err := json.Unmarshal(raw, &entry); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(entry.Status, entry.ContentType, entry.Body)
				c.Abort()
				return
			}
			utils.ErrorLogger.WithField("key", key).Warn("Discarding undecodable cache entry")
		}

		// Read before the handler so an invalidation during it is detected at write time.
		gen, genErr := store.Generation(reqCtx, namespace)
		if genErr != nil {
			utils.ErrorLogger.WithField("namespace", namespace).WithError(genErr).Warn("Cache generation read failed")
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Header("X-Cache", "MISS")
		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 || genErr != nil {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		})
		if err != nil {
			return
		}
		stored, err := store.SetIfGeneration(reqCtx, namespace, gen, key, payload, ttl)
		if err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{"key": key}).WithError(err).Warn("Cache write failed")
			return
		}
		if !stored {
			utils.InfoLogger.WithFields(logrus.Fields{"key": key, "namespace": namespace}).Debug("Namespace invalidated during request, response not cached")
		}
	}
}

// PublicScope is for routes whose output never depends on the caller.
func PublicScope(*services.Actor) string { return "public" }
