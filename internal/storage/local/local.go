// Package local provides the on-disk storage root that backs the virtual filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"

	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
)

// ErrNotDir is returned when a directory is needed where a file exists.
var ErrNotDir = errors.New("not a directory")

// tempPrefix marks in-flight uploads. Listings and walks skip them.
const tempPrefix = ".filehub-"

// Config holds storage root settings.
type Config struct {
	RootPath   string
	CreateDirs bool
}

// Node describes a file or directory under the root.
type Node struct {
	Name      string
	Path      string // slash-separated key relative to the root
	IsDir     bool
	Size      int64
	ModTime   time.Time
	CreatedAt time.Time // birth time where the platform reports one, else ModTime
}

// Root is a directory tree on the local filesystem. Every method takes an
// untrusted relative path and refuses anything that resolves outside the root.
type Root struct {
	rootPath string
}

// New opens the storage root, creating it when cfg.CreateDirs is set.
func New(cfg Config) (*Root, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}

	abs, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(abs, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", abs, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", abs, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", abs)
	}

	return &Root{rootPath: abs}, nil
}

// Path returns the absolute root directory.
func (r *Root) Path() string {
	return r.rootPath
}

// Resolve validates p and returns its canonical key and absolute path.
func (r *Root) Resolve(p string) (rel, abs string, err error) {
	return pathutil.Resolve(r.rootPath, p)
}

// Stat describes the node at p.
func (r *Root) Stat(p string) (Node, error) {
	rel, abs, err := r.Resolve(p)
	if err != nil {
		return Node{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Node{}, err
	}
	return newNode(rel, abs, info), nil
}

// ReadDir lists the immediate children of the directory at p.
// Entries removed while listing are skipped.
func (r *Root) ReadDir(p string) ([]Node, error) {
	rel, abs, err := r.Resolve(p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		// Follow symlinks for type, but only when the target stays inside the root.
		childAbs := filepath.Join(abs, entry.Name())
		if info.Mode()&fs.ModeSymlink != 0 {
			if _, _, err := r.Resolve(pathutil.Join(rel, entry.Name())); err != nil {
				continue
			}
			if target, err := os.Stat(childAbs); err == nil {
				info = target
			}
		}
		nodes = append(nodes, newNode(pathutil.Join(rel, entry.Name()), childAbs, info))
	}
	return nodes, nil
}

// Mkdir creates the directory at p. It fails with fs.ErrExist when anything
// already occupies the name, which makes it usable as an atomic claim.
func (r *Root) Mkdir(p string) (Node, error) {
	rel, abs, err := r.Resolve(p)
	if err != nil {
		return Node{}, err
	}
	if rel == "" {
		return Node{}, fs.ErrExist
	}
	if err := os.Mkdir(abs, 0755); err != nil {
		return Node{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Node{}, err
	}
	return newNode(rel, abs, info), nil
}

// MkdirAll creates the directory at p along with any missing parents and
// returns the directories it created, shallowest first. It fails with
// ErrNotDir when a path segment is occupied by a file.
func (r *Root) MkdirAll(p string) ([]Node, error) {
	rel, _, err := r.Resolve(p)
	if err != nil {
		return nil, err
	}

	var created []Node
	cur := ""
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" {
			continue
		}
		cur = pathutil.Join(cur, seg)
		n, err := r.Mkdir(cur)
		switch {
		case err == nil:
			created = append(created, n)
		case errors.Is(err, fs.ErrExist):
			st, err := r.Stat(cur)
			if err != nil {
				return created, err
			}
			if !st.IsDir {
				return created, fmt.Errorf("%s: %w", cur, ErrNotDir)
			}
		default:
			return created, err
		}
	}
	return created, nil
}

// Rename moves oldPath to newPath without replacing an existing node.
func (r *Root) Rename(oldPath, newPath string) error {
	oldRel, oldAbs, err := r.Resolve(oldPath)
	if err != nil {
		return err
	}
	newRel, newAbs, err := r.Resolve(newPath)
	if err != nil {
		return err
	}
	if oldRel == "" || newRel == "" {
		return fmt.Errorf("rename storage root: %w", fs.ErrInvalid)
	}
	if _, err := os.Lstat(oldAbs); err != nil {
		return err
	}
	return renameNoReplace(oldAbs, newAbs)
}

// RemoveAll deletes the node at p and everything beneath it. It returns
// fs.ErrNotExist when there was nothing to delete.
func (r *Root) RemoveAll(p string) error {
	rel, abs, err := r.Resolve(p)
	if err != nil {
		return err
	}
	if rel == "" {
		return fmt.Errorf("remove storage root: %w", fs.ErrInvalid)
	}
	if _, err := os.Lstat(abs); err != nil {
		return err
	}
	return os.RemoveAll(abs)
}

// Put writes body to p atomically, replacing any existing file. The parent
// directory must exist.
func (r *Root) Put(ctx context.Context, p string, body io.Reader) (Node, error) {
	rel, abs, err := r.Resolve(p)
	if err != nil {
		return Node{}, err
	}
	if rel == "" {
		return Node{}, fmt.Errorf("put storage root: %w", fs.ErrInvalid)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return Node{}, fs.ErrExist
	}

	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return Node{}, fmt.Errorf("create temp for %s: %w", rel, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: body}); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Node{}, fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Node{}, fmt.Errorf("close temp for %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return Node{}, fmt.Errorf("rename temp to %s: %w", rel, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Node{}, err
	}
	return newNode(rel, abs, info), nil
}

// ContentType sniffs the MIME type of the file at p.
func (r *Root) ContentType(p string) (string, error) {
	_, abs, err := r.Resolve(p)
	if err != nil {
		return "", err
	}
	mtype, err := mimetype.DetectFile(abs)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}

// SkipDir may be returned from a WalkFunc to skip a directory's contents.
var SkipDir = fs.SkipDir

// WalkFunc is called for every node under the root. It may be called
// concurrently from several goroutines.
type WalkFunc func(n Node) error

// Walk visits every node under the root except the root itself. Symlinks are
// not followed and unreadable entries are skipped.
func (r *Root) Walk(ctx context.Context, fn WalkFunc) error {
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, r.rootPath, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || p == r.rootPath {
			return nil
		}
		if strings.HasPrefix(d.Name(), tempPrefix) || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		relOS, err := filepath.Rel(r.rootPath, p)
		if err != nil {
			return nil
		}
		return fn(newNode(filepath.ToSlash(relOS), p, info))
	})
	return err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func newNode(rel, abs string, info fs.FileInfo) Node {
	return Node{
		Name:      filepath.Base(abs),
		Path:      rel,
		IsDir:     info.IsDir(),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		CreatedAt: birthTime(abs, info),
	}
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
