package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/opener"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/vfs"
)

// statusFor maps a service error to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var denied *sharing.DeniedError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &denied):
		return http.StatusForbidden, denied.Reason
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "upload exceeds the size limit"
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "not found"
	case errors.Is(err, vfs.ErrExists), errors.Is(err, fs.ErrExist):
		return http.StatusConflict, "already exists"
	case errors.Is(err, pathutil.ErrOutsideRoot),
		errors.Is(err, vfs.ErrInvalidName),
		errors.Is(err, vfs.ErrInvalidArgument),
		errors.Is(err, vfs.ErrNotDirectory),
		errors.Is(err, metadata.ErrInvalidType),
		errors.Is(err, sharing.ErrInvalidLevel):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, opener.ErrDisabled):
		return http.StatusNotImplemented, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	log := logging.WithContext(c.Request.Context())
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}

	resp := response{Error: msg}
	var denied *sharing.DeniedError
	if errors.As(err, &denied) {
		resp.Error = "permission denied"
		resp.Reason = denied.Reason
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, response{Error: msg})
}
