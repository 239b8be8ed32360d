package users

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the demo identity. There is no credential
	// behind it; this platform is a demonstration, not a bank.
	HeaderUserID = "X-User-ID"

	contextUserKey = "bondfi.user"
)

// Identify resolves the X-User-ID header to a user and stores it in the
// request context. Requests without the header pass through anonymously.
func Identify(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderUserID)
		if id == "" {
			c.Next()
			return
		}
		u, err := store.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unknown_user",
				"message": "no account matches " + HeaderUserID,
			})
			c.Abort()
			return
		}
		c.Set(contextUserKey, u)
		c.Next()
	}
}

// RequireUser aborts with 401 unless the request carries a resolved identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Current(c) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": HeaderUserID + " header required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the identified user has the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := Current(c)
		if u == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": HeaderUserID + " header required",
			})
			c.Abort()
			return
		}
		if u.Role != RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "admin role required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Current returns the identified user, or nil for anonymous requests.
func Current(c *gin.Context) *User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}

// CurrentID returns the identified user's ID, or "" for anonymous requests.
func CurrentID(c *gin.Context) string {
	if u := Current(c); u != nil {
		return u.ID
	}
	return ""
}
