package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSignAndValidate(t *testing.T) {
	a := New("secret")
	token, err := a.Sign(sharing.Identity{UserID: 42, Role: sharing.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	id, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, 42, id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestValidateRejects(t *testing.T) {
	a := New("secret")

	expired, err := a.Sign(sharing.Identity{UserID: 1}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Validate(expired)
	assert.Error(t, err)

	foreign, err := New("other").Sign(sharing.Identity{UserID: 1}, time.Hour)
	require.NoError(t, err)
	_, err = a.Validate(foreign)
	assert.Error(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: 1}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = a.Validate(noUser)
	assert.Error(t, err)
}

func newRouter(a *Auth) *gin.Engine {
	r := gin.New()
	r.GET("/me", a.Middleware(), func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		ctxID, _ := GetIdentity(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": id.UserID, "ctx": ctxID.UserID})
	})
	r.GET("/admin", a.Middleware(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	a := New("secret")
	r := newRouter(a)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := a.Sign(sharing.Identity{UserID: 9, Role: 2}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":9,"ctx":9}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
