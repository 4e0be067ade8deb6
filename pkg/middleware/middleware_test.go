package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, logs *bytes.Buffer) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := services.NewTokenService("test-secret", 0)
	_, token, _, err := tokens.NewWorkspace()
	require.NoError(t, err)

	ok := func(c *gin.Context) {
		claims, exists := GetWorkspaceClaimsFromContext(c)
		require.True(t, exists)
		c.String(http.StatusOK, claims.WorkspaceID)
	}
	r := gin.New()
	r.Use(RequestLogger(logs))
	r.GET("/header", AuthMiddleware(tokens), ok)
	r.GET("/stream", QueryTokenAuthMiddleware(tokens), ok)
	return r, token
}

func serve(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_HeaderOnly(t *testing.T) {
	var logs bytes.Buffer
	r, token := newTestEngine(t, &logs)

	require.Equal(t, http.StatusOK, serve(r, "/header", "Bearer "+token).Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/header?token="+token, "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/header", "Token "+token).Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/header", "Bearer nope").Code)
}

func TestQueryTokenAuthMiddleware(t *testing.T) {
	var logs bytes.Buffer
	r, token := newTestEngine(t, &logs)

	require.Equal(t, http.StatusOK, serve(r, "/stream?token="+token, "").Code)
	require.Equal(t, http.StatusOK, serve(r, "/stream", "Bearer "+token).Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/stream", "").Code)
}

func TestRequestLogger_RedactsToken(t *testing.T) {
	var logs bytes.Buffer
	r, token := newTestEngine(t, &logs)

	serve(r, "/stream?token="+token+"&v=1", "")
	serve(r, "/header?token="+token, "")

	out := logs.String()
	require.NotContains(t, out, token)
	require.Contains(t, out, "/stream?token=REDACTED&v=1")
	require.Contains(t, out, "/header?token=REDACTED")
}

func TestRedactToken(t *testing.T) {
	require.Equal(t, "/api/session", redactToken("/api/session"))
	require.Equal(t, "/a?x=1", redactToken("/a?x=1"))
	require.Equal(t, "/a?token=REDACTED", redactToken("/a?token=abc.def.ghi"))
	require.Equal(t, "/a?[unparsed]", redactToken("/a?token=%zz"))
}
