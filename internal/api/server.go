// Package api exposes the file service over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rameshkrishnan-s/FileHub/internal/auth"
	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/quota"
	"github.com/rameshkrishnan-s/FileHub/internal/search"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/vfs"
)

// PermissionHeader carries the caller's effective level on the target path.
const PermissionHeader = "X-Permission"

// Files is the subset of the file service the handlers call.
type Files interface {
	List(ctx context.Context, id sharing.Identity, p string) (*vfs.Listing, error)
	Search(ctx context.Context, id sharing.Identity, params search.Params) (*search.Page, error)
	CreateFolder(ctx context.Context, id sharing.Identity, parent, name string, subFolderCount int) (*vfs.Result, error)
	Rename(ctx context.Context, id sharing.Identity, parent, oldName, newName string) (*vfs.Result, error)
	Delete(ctx context.Context, id sharing.Identity, parent, name string) (*vfs.Result, error)
	Upload(ctx context.Context, id sharing.Identity, dir, name string, body io.Reader) (*vfs.Result, error)
	Open(ctx context.Context, id sharing.Identity, p string) error
	Reconcile(ctx context.Context, id sharing.Identity) (*vfs.ReconcileReport, error)
}

// Grants is the grant administration surface.
type Grants interface {
	SetGrant(ctx context.Context, userID int, path string, level sharing.Level) error
	Elevate(ctx context.Context, userID int, path string, level sharing.Level) (sharing.Level, error)
	RemoveGrant(ctx context.Context, userID int, path string) (bool, error)
	GrantsForUser(ctx context.Context, userID int) ([]sharing.Grant, error)
}

// Config holds the HTTP-level settings.
type Config struct {
	CORSOrigins   []string
	MaxUploadSize int64
}

// Server is the HTTP server.
type Server struct {
	files       Files
	grants      Grants
	auth        *auth.Auth
	rateLimiter *quota.RateLimiter
	cfg         Config
	router      *gin.Engine
}

// NewServer creates a new server. rateLimiter may be nil.
func NewServer(files Files, grants Grants, authHandler *auth.Auth, rateLimiter *quota.RateLimiter, cfg Config) *Server {
	s := &Server{
		files:       files,
		grants:      grants,
		auth:        authHandler,
		rateLimiter: rateLimiter,
		cfg:         cfg,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware())
	r.Use(metrics.Middleware())
	r.Use(CORS(DefaultCORSConfig(s.cfg.CORSOrigins...)))

	r.GET("/health", s.handleHealth)

	authed := r.Group("/api", s.auth.Middleware())
	if s.rateLimiter != nil {
		authed.Use(s.rateLimiter.Middleware(userKey))
	}

	folder := authed.Group("/folder")
	folder.GET("/list", s.handleList)
	folder.GET("/search", s.handleSearch)
	folder.POST("/create-folder", s.handleCreateFolder)
	folder.POST("/rename", s.handleRename)
	folder.POST("/delete", s.handleDelete)
	folder.POST("/upload", s.handleUpload)
	folder.POST("/open", s.handleOpen)

	admin := authed.Group("/admin", auth.RequireAdmin())
	admin.GET("/grants/:userID", s.handleListGrants)
	admin.PUT("/grants", s.handleSetGrant)
	admin.DELETE("/grants", s.handleRemoveGrant)
	admin.POST("/grants/elevate", s.handleElevate)
	admin.POST("/reconcile", s.handleReconcile)

	return r
}

func userKey(c *gin.Context) string {
	if id, ok := auth.IdentityFrom(c); ok {
		return fmt.Sprintf("user:%d", id.UserID)
	}
	return ""
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// identity returns the authenticated caller. The auth middleware guarantees it.
func identity(c *gin.Context) sharing.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}

type response struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Data     any      `json:"data,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, response{Success: true, Message: message, Data: data})
}

// okResult writes a mutation result, keeping metadata warnings visible to
// the client.
func okResult(c *gin.Context, status int, message string, res *vfs.Result) {
	setPermission(c, res.Permission)
	c.JSON(status, response{Success: true, Message: message, Data: res, Warnings: res.Warnings})
}

func setPermission(c *gin.Context, level sharing.Level) {
	c.Set("permission", level)
	c.Header(PermissionHeader, level.String())
}
