package security

import (
	"net/http"
	"strings"

	"ReadCamp/tools/errs"
	jwtlib "ReadCamp/tools/security"

	"github.com/gin-gonic/gin"
)

// context key for the stable user id extracted from the session token
const CtxUserIDKey = "user_id"

// Middleware verifies the Bearer token and stores the subject in the
// request context. ws upgrades pass the token via ?token= since browsers
// cannot set headers there.
func Middleware(opts jwtlib.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			abortUnauthorized(c, "token required")
			return
		}

		userID, err := jwtlib.Verify(opts, token)
		if err != nil {
			abortUnauthorized(c, "token invalid or expired")
			return
		}
		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

// UserID reads the authenticated user id, empty when unauthenticated.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": errs.CodeTokenInvalid,
		"msg":  msg,
	})
}
