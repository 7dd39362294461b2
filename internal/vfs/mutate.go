package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/storage/local"
)

// CreateFolder creates name inside parent, choosing name-1, name-2, ... when
// the name is taken, and then subFolderCount children named {final}-{i}
// inside it. Each name is claimed with an exclusive mkdir, so concurrent
// callers never end up sharing a folder.
func (s *Service) CreateFolder(ctx context.Context, id sharing.Identity, parent, name string, subFolderCount int) (_ *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordFSOperation("create_folder", time.Since(start), err) }()

	if err := pathutil.ValidateName(name); err != nil {
		return nil, err
	}
	if subFolderCount < 0 || subFolderCount > s.cfg.MaxSubFolders {
		return nil, fmt.Errorf("subFolderCount must be between 0 and %d: %w", s.cfg.MaxSubFolders, ErrInvalidArgument)
	}

	rel, d, err := s.authorize(ctx, id, parent, sharing.LevelWrite)
	if err != nil {
		return nil, err
	}

	// A grant may name a folder that does not exist yet.
	parents, warnings, err := s.ensureDir(ctx, "create_folder", rel)
	if err != nil {
		return nil, err
	}

	var created local.Node
	final := ""
	for attempt := 0; attempt < s.cfg.MaxCreateAttempts && final == ""; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", name, attempt)
		}
		created, err = s.root.Mkdir(pathutil.Join(rel, candidate))
		switch {
		case err == nil:
			final = candidate
		case errors.Is(err, fs.ErrExist):
			continue
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("parent %q: %w", rel, ErrNotFound)
		case errors.Is(err, syscall.ENAMETOOLONG):
			return nil, fmt.Errorf("create folder %q: %w: %w", candidate, ErrInvalidName, err)
		default:
			return nil, fmt.Errorf("create folder: %w", err)
		}
	}
	if final == "" {
		return nil, fmt.Errorf("create folder %q: %d candidate names taken: %w", name, s.cfg.MaxCreateAttempts, ErrExists)
	}

	nodes := []local.Node{created}
	for i := 1; i <= subFolderCount; i++ {
		child, err := s.root.Mkdir(pathutil.Join(created.Path, fmt.Sprintf("%s-%d", final, i)))
		if err != nil {
			if errors.Is(err, syscall.ENAMETOOLONG) {
				err = fmt.Errorf("%w: %w", ErrInvalidName, err)
			}
			return nil, s.undoCreate(ctx, created.Path, nodes, fmt.Errorf("create subfolder %d of %q: %w", i, created.Path, err))
		}
		nodes = append(nodes, child)
	}

	res := &Result{Name: final, Path: created.Path, Created: parents, Permission: d.Level, Warnings: warnings}
	for _, n := range nodes {
		res.Created = append(res.Created, n.Path)
		if err := s.indexFolder(ctx, n); err != nil {
			res.Warnings = append(res.Warnings, metadataFailed(ctx, "create_folder", n.Path, err))
		}
	}

	logging.WithContext(ctx).Info("folder created",
		zap.Int("user_id", id.UserID),
		zap.String("path", created.Path),
		zap.Int("subfolders", subFolderCount),
	)
	return res, nil
}

// Rename renames oldName to newName inside parent. It never replaces an
// existing node.
func (s *Service) Rename(ctx context.Context, id sharing.Identity, parent, oldName, newName string) (_ *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordFSOperation("rename", time.Since(start), err) }()

	if err := pathutil.ValidateName(oldName); err != nil {
		return nil, err
	}
	if err := pathutil.ValidateName(newName); err != nil {
		return nil, err
	}

	rel, d, err := s.authorize(ctx, id, parent, sharing.LevelWrite)
	if err != nil {
		return nil, err
	}

	oldRel, newRel := pathutil.Join(rel, oldName), pathutil.Join(rel, newName)
	res := &Result{Name: newName, Path: newRel, Permission: d.Level}

	if oldName == newName {
		if _, err := s.root.Stat(oldRel); err != nil {
			return nil, fmt.Errorf("rename %q: %w", oldRel, ErrNotFound)
		}
		return res, nil
	}

	if err := s.root.Rename(oldRel, newRel); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("rename %q: %w", oldRel, ErrNotFound)
		case errors.Is(err, fs.ErrExist):
			return nil, fmt.Errorf("rename to %q: %w", newRel, ErrExists)
		}
		return nil, fmt.Errorf("rename %q: %w", oldRel, err)
	}

	if _, err := s.meta.RenamePath(ctx, oldRel, newRel); err != nil {
		res.Warnings = append(res.Warnings, metadataFailed(ctx, "rename", newRel, err))
	}

	logging.WithContext(ctx).Info("renamed",
		zap.Int("user_id", id.UserID),
		zap.String("from", oldRel),
		zap.String("to", newRel),
	)
	return res, nil
}

// Delete removes name inside parent, recursively for folders.
func (s *Service) Delete(ctx context.Context, id sharing.Identity, parent, name string) (_ *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordFSOperation("delete", time.Since(start), err) }()

	if err := pathutil.ValidateName(name); err != nil {
		return nil, err
	}

	rel, d, err := s.authorize(ctx, id, parent, sharing.LevelWrite)
	if err != nil {
		return nil, err
	}

	target := pathutil.Join(rel, name)
	if err := s.root.RemoveAll(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("delete %q: %w", target, ErrNotFound)
		}
		return nil, fmt.Errorf("delete %q: %w", target, err)
	}

	res := &Result{Name: name, Path: target, Permission: d.Level}
	if _, err := s.meta.DeleteByPath(ctx, target); err != nil {
		res.Warnings = append(res.Warnings, metadataFailed(ctx, "delete", target, err))
	}

	logging.WithContext(ctx).Info("deleted", zap.Int("user_id", id.UserID), zap.String("path", target))
	return res, nil
}

// Upload stores body as name inside dir, replacing an existing file of the
// same name. Browsers may send a full client path as the name; only its
// last segment is used.
func (s *Service) Upload(ctx context.Context, id sharing.Identity, dir, name string, body io.Reader) (_ *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordFSOperation("upload", time.Since(start), err) }()

	name = path.Base(pathutil.Normalize(name))
	if err := pathutil.ValidateName(name); err != nil {
		return nil, err
	}

	rel, d, err := s.authorize(ctx, id, dir, sharing.LevelWrite)
	if err != nil {
		return nil, err
	}

	parents, warnings, err := s.ensureDir(ctx, "upload", rel)
	if err != nil {
		return nil, err
	}

	target := pathutil.Join(rel, name)
	node, err := s.root.Put(ctx, target, body)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("upload %q: a folder has that name: %w", target, ErrExists)
		}
		return nil, fmt.Errorf("upload %q: %w", target, err)
	}
	metrics.RecordUpload(node.Size)

	mime, err := s.root.ContentType(target)
	if err != nil {
		logging.WithContext(ctx).Debug("content type detection failed", zap.String("path", target), zap.Error(err))
	}

	res := &Result{Name: name, Path: target, Created: append(parents, target), Permission: d.Level, Warnings: warnings}
	if err := s.meta.Upsert(ctx, &metadata.Entry{FileName: name, FilePath: target, Type: metadata.TypeFile, MimeType: mime}); err != nil {
		res.Warnings = append(res.Warnings, metadataFailed(ctx, "upload", target, err))
	}

	logging.WithContext(ctx).Info("uploaded",
		zap.Int("user_id", id.UserID),
		zap.String("path", target),
		zap.Int64("size", node.Size),
	)
	return res, nil
}

// ensureDir creates the directory rel and any missing parents, indexing each
// one it creates. It returns the created paths and any index warnings.
func (s *Service) ensureDir(ctx context.Context, op, rel string) ([]string, []string, error) {
	nodes, err := s.root.MkdirAll(rel)

	var created, warnings []string
	for _, n := range nodes {
		created = append(created, n.Path)
		if err := s.indexFolder(ctx, n); err != nil {
			warnings = append(warnings, metadataFailed(ctx, op, n.Path, err))
		}
	}

	if err != nil {
		if errors.Is(err, local.ErrNotDir) {
			return created, warnings, fmt.Errorf("directory %q: %w", rel, ErrNotDirectory)
		}
		return created, warnings, fmt.Errorf("create directory %q: %w", rel, err)
	}
	if len(nodes) > 0 {
		logging.WithContext(ctx).Info("directories created", zap.String("path", rel), zap.Int("count", len(nodes)))
	}
	return created, warnings, nil
}

// undoCreate removes a half-built folder tree after cause. When the removal
// fails the nodes that remain on disk are indexed.
func (s *Service) undoCreate(ctx context.Context, top string, nodes []local.Node, cause error) error {
	rmErr := s.root.RemoveAll(top)
	if rmErr == nil {
		return cause
	}

	logging.WithContext(ctx).Error("remove partial folder failed", zap.String("path", top), zap.Error(rmErr))
	for _, n := range nodes {
		if err := s.indexFolder(ctx, n); err != nil {
			metadataFailed(ctx, "create_folder", n.Path, err)
		}
	}
	return fmt.Errorf("%w (left %q in place: %v)", cause, top, rmErr)
}

func (s *Service) indexFolder(ctx context.Context, n local.Node) error {
	return s.meta.Upsert(ctx, &metadata.Entry{FileName: n.Name, FilePath: n.Path, Type: metadata.TypeFolder})
}

// Open launches the node at p on the server host.
func (s *Service) Open(ctx context.Context, id sharing.Identity, p string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordFSOperation("open", time.Since(start), err) }()

	rel, _, err := s.authorize(ctx, id, p, sharing.LevelRead)
	if err != nil {
		return err
	}
	if _, err := s.root.Stat(rel); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("open %q: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("open %q: %w", rel, err)
	}

	_, abs, err := s.root.Resolve(rel)
	if err != nil {
		return err
	}
	if err := s.opener.Open(ctx, abs); err != nil {
		return fmt.Errorf("open %q: %w", rel, err)
	}
	return nil
}
