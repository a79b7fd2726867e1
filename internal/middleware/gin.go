package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinTrackSessions adapts the net/http SessionTracker to Gin.
func GinTrackSessions(t *SessionTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		t.TrackSessions(next).ServeHTTP(c.Writer, c.Request)

		// If the tracker already handled the response, stop the Gin chain
		if c.Writer.Written() {
			c.Abort()
		}
	}
}
