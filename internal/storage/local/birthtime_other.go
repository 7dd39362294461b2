//go:build !linux

package local

import (
	"io/fs"
	"time"
)

func birthTime(_ string, info fs.FileInfo) time.Time {
	return info.ModTime()
}
