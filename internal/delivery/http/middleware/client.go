package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
)

// ClientIDHeader identifies a player's browser or device across sessions.
const ClientIDHeader = "X-Client-ID"

const clientIDKey = "client_id"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ClientIdentity stores a well-formed X-Client-ID in the gin context.
// Malformed values are ignored.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(ClientIDHeader); clientIDPattern.MatchString(id) {
			c.Set(clientIDKey, id)
		}
		c.Next()
	}
}

// ClientID returns the id stored by ClientIdentity, or "".
func ClientID(c *gin.Context) string {
	return c.GetString(clientIDKey)
}
