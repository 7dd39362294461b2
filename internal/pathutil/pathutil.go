// Package pathutil normalizes request paths and keeps them inside the storage root.
//
// Request paths arrive from browsers on any platform, so they may carry a
// Windows drive prefix or backslash separators. Every prefix comparison and
// every join onto the storage root goes through this package first.
package pathutil

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrOutsideRoot is returned when a path would resolve outside the storage root.
	ErrOutsideRoot = errors.New("path escapes storage root")
	// ErrInvalidName is returned for entry names that are empty, dot segments or contain separators.
	ErrInvalidName = errors.New("invalid name")
)

var drivePrefix = regexp.MustCompile(`^[A-Z]:/?`)

// Normalize converts backslashes to forward slashes and strips leading
// drive-letter prefixes such as "C:\" or "D:". Normalize(Normalize(p)) == Normalize(p).
func Normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for {
		loc := drivePrefix.FindStringIndex(p)
		if loc == nil {
			return p
		}
		p = p[loc[1]:]
	}
}

// Clean returns the canonical relative key for p: normalized, lexically
// cleaned, without leading or trailing slashes. The root is "".
func Clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+Normalize(p)), "/")
}

// Rel validates an untrusted path and returns its canonical relative key.
// Unlike Clean it refuses ".." segments instead of folding them away.
func Rel(p string) (string, error) {
	n := Normalize(p)
	if strings.ContainsRune(n, 0) {
		return "", ErrInvalidName
	}
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." {
			return "", ErrOutsideRoot
		}
	}
	return Clean(n), nil
}

// Resolve validates p and joins it onto root. The returned rel is the
// canonical key used for metadata and grants; abs is the on-disk path.
// Existing path components are followed through symlinks and must stay
// under root.
func Resolve(root, p string) (rel, abs string, err error) {
	rel, err = Rel(p)
	if err != nil {
		return "", "", err
	}
	abs = filepath.Join(root, filepath.FromSlash(rel))
	if err := checkSymlinks(root, abs); err != nil {
		return "", "", err
	}
	return rel, abs, nil
}

// Join builds a child key from a parent key and a single name.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Parent returns the parent key of p ("" for top-level entries).
func Parent(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// HasPrefix reports whether p equals prefix or lies beneath it. Both
// arguments must already be cleaned. The empty prefix covers everything.
func HasPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// ValidateName checks a single path segment supplied by a client.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidName
	}
	return nil
}

// Contains reports whether target is base or lies beneath it on disk.
func Contains(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// checkSymlinks resolves the deepest existing ancestor of abs and verifies
// it is still inside root.
func checkSymlinks(root, abs string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	probe := abs
	for {
		real, err := filepath.EvalSymlinks(probe)
		if err == nil {
			if !Contains(realRoot, real) {
				return ErrOutsideRoot
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(probe)
		if parent == probe || !Contains(root, parent) {
			return nil
		}
		probe = parent
	}
}
