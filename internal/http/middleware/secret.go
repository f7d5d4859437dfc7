package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const SecretHeader = "X-Webhook-Secret"

// WebhookSecret guards the webhook endpoint with a shared secret. GroupMe
// callbacks cannot set custom headers, so the secret is also accepted as a
// "token" query parameter. An empty required secret disables the check.
func WebhookSecret(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		got := c.GetHeader(SecretHeader)
		if got == "" {
			got = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(required)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid webhook secret",
				},
			})
			return
		}
		c.Next()
	}
}
