package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/immxrtalbeast/meshtalk/internal/service"
)

// Context keys under which authenticated identity is stored.
const (
	ContextUsername = "username"
	ContextUserID   = "user_id"
)

// AuthRequired guards REST endpoints with a bearer token. The signaling
// websocket is deliberately not behind it: guest access to calls is a
// first-class use case.
func AuthRequired(users service.UserInteractor) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		claims, err := users.Authenticate(token)
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
				return
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx.Set(ContextUsername, claims.Username)
		ctx.Set(ContextUserID, claims.Subject)
		ctx.Next()
	}
}
