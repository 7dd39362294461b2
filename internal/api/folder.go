package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/search"
)

type createFolderRequest struct {
	FolderName     string `json:"folderName" binding:"required"`
	Path           string `json:"path"`
	SubFolderCount int    `json:"subFolderCount" binding:"gte=0"`
}

type renameRequest struct {
	Path    string `json:"path"`
	OldName string `json:"oldName" binding:"required"`
	NewName string `json:"newName" binding:"required"`
}

type deleteRequest struct {
	Path string `json:"path"`
	Name string `json:"name" binding:"required"`
}

type openRequest struct {
	FilePath string `json:"filePath" binding:"required"`
}

func (s *Server) handleList(c *gin.Context) {
	listing, err := s.files.List(c.Request.Context(), identity(c), c.Query("path"))
	if err != nil {
		fail(c, err)
		return
	}
	setPermission(c, listing.Permission)
	ok(c, http.StatusOK, "", listing)
}

func (s *Server) handleSearch(c *gin.Context) {
	typ, err := metadata.ParseType(c.Query("type"))
	if err != nil {
		fail(c, err)
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		badRequest(c, "page must be an integer")
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "limit must be an integer")
		return
	}

	res, err := s.files.Search(c.Request.Context(), identity(c), search.Params{
		Query: c.Query("query"),
		Type:  typ,
		Scope: c.Query("path"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", res)
}

// queryInt parses an optional integer parameter; absent means zero.
func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleCreateFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := s.files.CreateFolder(c.Request.Context(), identity(c), req.Path, req.FolderName, req.SubFolderCount)
	if err != nil {
		fail(c, err)
		return
	}
	okResult(c, http.StatusCreated, "folder created", res)
}

func (s *Server) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := s.files.Rename(c.Request.Context(), identity(c), req.Path, req.OldName, req.NewName)
	if err != nil {
		fail(c, err)
		return
	}
	okResult(c, http.StatusOK, "renamed", res)
}

func (s *Server) handleDelete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := s.files.Delete(c.Request.Context(), identity(c), req.Path, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	okResult(c, http.StatusOK, "deleted", res)
}

// handleUpload stores a single multipart "file" part under the directory in
// the "path" form field.
func (s *Server) handleUpload(c *gin.Context) {
	if s.cfg.MaxUploadSize > 0 {
		if c.Request.ContentLength > s.cfg.MaxUploadSize {
			fail(c, &http.MaxBytesError{Limit: s.cfg.MaxUploadSize})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadSize)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, err)
			return
		}
		badRequest(c, "missing file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	res, err := s.files.Upload(c.Request.Context(), identity(c), c.PostForm("path"), fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	okResult(c, http.StatusCreated, "uploaded", res)
}

func (s *Server) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := s.files.Open(c.Request.Context(), identity(c), req.FilePath); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "opened", nil)
}
