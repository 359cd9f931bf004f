package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/utils"
)

// ServiceTokenHeader carries the shared secret of collaborator services.
const ServiceTokenHeader = "X-Service-Token"

// ServiceAuth guards the internal API. An empty token rejects every call.
func ServiceAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(ctx *gin.Context) {
		got := []byte(ctx.GetHeader(ServiceTokenHeader))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "invalid service token")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
