package middleware

import (
	"net/http"
	"strings"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/services"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Gin context key for storing workspace claims.
const WorkspaceClaimsContextKey = "workspaceClaims"

// AuthMiddleware authenticates requests with a workspace JWT from the
// Authorization header.
func AuthMiddleware(tokens *services.TokenService) gin.HandlerFunc {
	return authenticate(tokens, false)
}

// QueryTokenAuthMiddleware also accepts the token as ?token=. Browsers cannot
// set headers on websocket upgrades, so only the stream route uses it.
func QueryTokenAuthMiddleware(tokens *services.TokenService) gin.HandlerFunc {
	return authenticate(tokens, true)
}

func authenticate(tokens *services.TokenService, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c, allowQuery)
		if !ok {
			log.Debug("AuthMiddleware: Missing or malformed Authorization header.")
			utils.AbortWithError(c, http.StatusUnauthorized, "Authorization header required", nil)
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			log.Debugf("AuthMiddleware: Invalid or expired JWT token: %v", err)
			utils.AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token", err.Error())
			return
		}

		c.Set(WorkspaceClaimsContextKey, claims)
		log.Debugf("AuthMiddleware: workspace %s authenticated.", claims.WorkspaceID)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if !allowQuery {
			return "", false
		}
		token := c.Query("token")
		return token, token != ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetWorkspaceClaimsFromContext extracts workspace claims from the Gin context.
func GetWorkspaceClaimsFromContext(c *gin.Context) (*services.Claims, bool) {
	claims, exists := c.Get(WorkspaceClaimsContextKey)
	if !exists {
		return nil, false
	}
	workspaceClaims, ok := claims.(*services.Claims)
	if !ok {
		return nil, false
	}
	return workspaceClaims, true
}
