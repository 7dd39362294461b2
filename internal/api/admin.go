package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
)

type grantRequest struct {
	UserID     int    `json:"userId" binding:"required,gt=0"`
	Path       string `json:"path"`
	Permission string `json:"permission"`
}

// grantPath normalizes the requested path so grants compare against the
// same keys the resolver sees.
func grantPath(p string) (string, error) {
	return pathutil.Rel(p)
}

func (s *Server) handleListGrants(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || userID <= 0 {
		badRequest(c, "invalid user id")
		return
	}
	grants, err := s.grants.GrantsForUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	if grants == nil {
		grants = []sharing.Grant{}
	}
	ok(c, http.StatusOK, "", grants)
}

func (s *Server) handleSetGrant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	level, err := sharing.ParseLevel(req.Permission)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := grantPath(req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.grants.SetGrant(c.Request.Context(), req.UserID, p, level); err != nil {
		fail(c, err)
		return
	}
	logging.WithContext(c.Request.Context()).Info("grant set",
		zap.Int("user_id", req.UserID), zap.String("path", p), zap.String("permission", level.String()))
	ok(c, http.StatusOK, "grant set", gin.H{"userId": req.UserID, "path": p, "permission": level})
}

func (s *Server) handleRemoveGrant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := grantPath(req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	removed, err := s.grants.RemoveGrant(c.Request.Context(), req.UserID, p)
	if err != nil {
		fail(c, err)
		return
	}
	if !removed {
		c.AbortWithStatusJSON(http.StatusNotFound, response{Error: "grant not found"})
		return
	}
	ok(c, http.StatusOK, "grant removed", nil)
}

// handleElevate raises the user to write on the path. The original level is
// kept when it is already higher.
func (s *Server) handleElevate(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := grantPath(req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	level, err := s.grants.Elevate(c.Request.Context(), req.UserID, p, sharing.LevelWrite)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "access granted", gin.H{"userId": req.UserID, "path": p, "permission": level})
}

func (s *Server) handleReconcile(c *gin.Context) {
	report, err := s.files.Reconcile(c.Request.Context(), identity(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Success: true, Data: report, Warnings: report.Warnings})
}
