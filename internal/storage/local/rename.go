package local

import (
	"io/fs"
	"os"
)

// renameChecked refuses to overwrite newAbs. The check and the rename are
// separate steps, so a concurrent create can still slip in between.
func renameChecked(oldAbs, newAbs string) error {
	if _, err := os.Lstat(newAbs); err == nil {
		return &fs.PathError{Op: "rename", Path: newAbs, Err: fs.ErrExist}
	}
	return os.Rename(oldAbs, newAbs)
}
