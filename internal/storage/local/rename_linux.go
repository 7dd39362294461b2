//go:build linux

package local

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

func renameNoReplace(oldAbs, newAbs string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldAbs, unix.AT_FDCWD, newAbs, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EEXIST):
		return &fs.PathError{Op: "rename", Path: newAbs, Err: fs.ErrExist}
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL):
		// Filesystem without RENAME_NOREPLACE support.
		return renameChecked(oldAbs, newAbs)
	}
	return &fs.PathError{Op: "rename", Path: oldAbs, Err: err}
}
