// Package auth turns bearer tokens into caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
)

type contextKey string

const identityContextKey contextKey = "identity"

// identityKey is where the gin middleware stores the identity on gin.Context.
const identityKey = "filehub.identity"

// Claims holds JWT token claims.
type Claims struct {
	UserID int `json:"user_id"`
	Role   int `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates HS256 tokens.
type Auth struct {
	secret []byte
}

// New creates a new Auth handler.
func New(jwtSecret string) *Auth {
	return &Auth{secret: []byte(jwtSecret)}
}

// Sign issues a token for id that expires after ttl. Login lives elsewhere;
// this exists for the seed tool and tests.
func (a *Auth) Sign(id sharing.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate parses tokenStr and returns the identity it carries.
func (a *Auth) Validate(tokenStr string) (sharing.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return sharing.Identity{}, err
	}
	if !token.Valid {
		return sharing.Identity{}, errors.New("invalid token")
	}
	if claims.UserID <= 0 {
		return sharing.Identity{}, errors.New("token has no user_id")
	}
	return sharing.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid token and stores the caller's
// identity on the request.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c.Request)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(c, http.StatusUnauthorized, "missing authentication token")
			return
		}

		id, err := a.Validate(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(c.Request.Context()).Debug("token rejected", zap.Error(err))
			sendAuthError(c, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		metrics.RecordAuthAttempt(true)
		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAdmin aborts unless the caller is an admin. It must run after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || !id.IsAdmin() {
			sendAuthError(c, http.StatusForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id sharing.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// GetIdentity extracts the identity from a request context.
func GetIdentity(ctx context.Context) (sharing.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(sharing.Identity)
	return id, ok
}

// IdentityFrom extracts the identity set by Middleware.
func IdentityFrom(c *gin.Context) (sharing.Identity, bool) {
	if v, ok := c.Get(identityKey); ok {
		id, ok := v.(sharing.Identity)
		return id, ok
	}
	return GetIdentity(c.Request.Context())
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Query parameter fallback for links opened outside the SPA
	return r.URL.Query().Get("token")
}

func sendAuthError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "error": message})
}
