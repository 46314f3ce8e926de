package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-queue-system/pkg/jwt"
	"github.com/venue-queue-system/pkg/redis"
)

func setupProtectedRoute(t *testing.T) (*gin.Engine, redismock.ClientMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, mock := redismock.NewClientMock()
	sessions := redis.NewSessionStore(client)

	router := gin.New()
	router.GET("/protected", Middleware(sessions), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	return router, mock
}

func expectSession(t *testing.T, mock redismock.ClientMock, userID string, expiresAt time.Time) {
	t.Helper()
	payload, err := json.Marshal(&redis.SessionInfo{UserID: userID, ExpiresAt: expiresAt})
	require.NoError(t, err)
	mock.ExpectGet("session:" + userID).SetVal(string(payload))
}

func TestMiddleware_AcceptsBearerHeader(t *testing.T) {
	router, mock := setupProtectedRoute(t)

	token, err := jwt.GenerateToken("user-1", time.Hour)
	require.NoError(t, err)
	expectSession(t, mock, "user-1", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestMiddleware_AcceptsQueryToken(t *testing.T) {
	router, mock := setupProtectedRoute(t)

	token, err := jwt.GenerateToken("user-2", time.Hour)
	require.NoError(t, err)
	expectSession(t, mock, "user-2", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_RejectsMissingCredentials(t *testing.T) {
	router, _ := setupProtectedRoute(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_RejectsExpiredSession(t *testing.T) {
	router, mock := setupProtectedRoute(t)

	token, err := jwt.GenerateToken("user-3", time.Hour)
	require.NoError(t, err)
	expectSession(t, mock, "user-3", time.Now().Add(-time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
