package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextClaimsKey stores the parsed *utils.Claims.
	ContextClaimsKey = "claims"
)

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return authenticate(false)
}

// AuthRequiredOrQuery also accepts ?token=, for websocket upgrades where
// browsers cannot set headers.
func AuthRequiredOrQuery() gin.HandlerFunc {
	return authenticate(true)
}

func authenticate(allowQuery bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, code, msg := bearerToken(ctx, allowQuery)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}

		if utils.IsTokenRevoked(tokenString) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Set(ContextClaimsKey, claims)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context, allowQuery bool) (string, int, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		if allowQuery {
			if tok := strings.TrimSpace(ctx.Query("token")); tok != "" {
				return tok, 0, ""
			}
		}
		return "", 40101, "authorization header missing"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", 40102, "invalid authorization header format"
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", 40103, "empty bearer token"
	}
	return tokenString, 0, ""
}

// ClaimsFrom returns the authenticated principal, or nil.
func ClaimsFrom(ctx *gin.Context) *utils.Claims {
	v, ok := ctx.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*utils.Claims)
	return claims
}

// GuildMember requires the principal to belong to the guild named by param.
func GuildMember(param string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := ClaimsFrom(ctx)
		if claims == nil || !claims.InGuild(ctx.Param(param)) {
			utils.Error(ctx, http.StatusForbidden, 40301, "not a member of this guild")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// GuildAdmin requires the principal to administer the guild named by param.
func GuildAdmin(param string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := ClaimsFrom(ctx)
		if claims == nil || !claims.AdminOf(ctx.Param(param)) {
			utils.Error(ctx, http.StatusForbidden, 40302, "guild admin required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
