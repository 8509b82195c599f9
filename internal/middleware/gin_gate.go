package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinGate adapts the net/http Gate to Gin. Auth decisions stay
// session-based and framework-agnostic; only the plumbing is adapted.
func GinGate(gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		// Wrap the Gin request with the net/http gate
		handler := gate.Protect(next)

		// Execute middleware chain
		handler.ServeHTTP(c.Writer, c.Request)

		// If the gate already handled the response, stop the Gin chain
		if c.Writer.Written() {
			c.Abort()
			return
		}
	}
}
