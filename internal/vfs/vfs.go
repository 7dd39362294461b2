// Package vfs is the permission-scoped virtual filesystem.
//
// Every operation resolves the caller's permission on the target path before
// touching the storage root. Successful mutations then update the metadata
// index; a metadata failure at that point does not undo the filesystem change
// but is reported as a warning on the result.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/opener"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
	"github.com/rameshkrishnan-s/FileHub/internal/search"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/storage/local"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrExists          = errors.New("already exists")
	ErrNotDirectory    = errors.New("not a directory")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidName     = pathutil.ErrInvalidName
)

// MetadataStore is the index the service keeps in step with the filesystem.
type MetadataStore interface {
	Upsert(ctx context.Context, e *metadata.Entry) error
	FindByPath(ctx context.Context, path string) (*metadata.Entry, error)
	RenamePath(ctx context.Context, oldPath, newPath string) (bool, error)
	DeleteByPath(ctx context.Context, path string) (int64, error)
	Paths(ctx context.Context, scope string) (map[string]metadata.EntryType, error)
}

// Config tunes the service.
type Config struct {
	MaxCreateAttempts int      // candidate names tried by CreateFolder
	MaxSubFolders     int      // upper bound for subFolderCount
	ReconcileIgnore   []string // doublestar patterns matched against keys and names
}

// DefaultConfig returns the limits used when a field is left zero.
func DefaultConfig() Config {
	return Config{MaxCreateAttempts: 100, MaxSubFolders: 50}
}

// Service implements the filesystem operations.
type Service struct {
	root     *local.Root
	meta     MetadataStore
	resolver *sharing.Resolver
	searcher *search.Searcher
	opener   opener.Opener
	cfg      Config
}

// New wires a Service. A nil opener disables Open.
func New(root *local.Root, meta MetadataStore, resolver *sharing.Resolver, searcher *search.Searcher, op opener.Opener, cfg Config) (*Service, error) {
	def := DefaultConfig()
	if cfg.MaxCreateAttempts <= 0 {
		cfg.MaxCreateAttempts = def.MaxCreateAttempts
	}
	if cfg.MaxSubFolders <= 0 {
		cfg.MaxSubFolders = def.MaxSubFolders
	}
	if err := validatePatterns(cfg.ReconcileIgnore); err != nil {
		return nil, err
	}
	if op == nil {
		op = opener.Disabled{}
	}
	return &Service{root: root, meta: meta, resolver: resolver, searcher: searcher, opener: op, cfg: cfg}, nil
}

// Item is one child in a directory listing.
type Item struct {
	Name       string             `json:"name"`
	Path       string             `json:"path"`
	Type       metadata.EntryType `json:"type"`
	Size       int64              `json:"size"`
	CreatedAt  time.Time          `json:"createdAt"`
	ModifiedAt time.Time          `json:"modifiedAt"`
	Metadata   *metadata.Entry    `json:"metadata,omitempty"`
}

// Listing is the content of one directory as the caller may see it.
type Listing struct {
	Path       string        `json:"path"`
	Permission sharing.Level `json:"permission"`
	Items      []Item        `json:"items"`
}

// Result reports a mutation. Warnings are set when the filesystem change
// succeeded but the metadata index could not be updated.
type Result struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Created    []string      `json:"created,omitempty"`
	Permission sharing.Level `json:"permission"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Partial reports whether the metadata index lags the filesystem change.
func (r *Result) Partial() bool {
	return len(r.Warnings) > 0
}

// List returns the children of the directory at p, folders first and then
// by name. A permitted directory that does not exist lists as empty.
func (s *Service) List(ctx context.Context, id sharing.Identity, p string) (_ *Listing, err error) {
	start := time.Now()
	defer func() { metrics.RecordFSOperation("list", time.Since(start), err) }()

	rel, d, err := s.authorize(ctx, id, p, sharing.LevelRead)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Path: rel, Permission: d.Level, Items: []Item{}}

	nodes, err := s.root.ReadDir(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return listing, nil
		}
		if st, serr := s.root.Stat(rel); serr == nil && !st.IsDir {
			return nil, fmt.Errorf("list %q: %w", rel, ErrNotDirectory)
		}
		return nil, fmt.Errorf("list %q: %w", rel, err)
	}

	for _, n := range nodes {
		if !d.Permits(n.Path) {
			continue
		}
		item := Item{
			Name:       n.Name,
			Path:       n.Path,
			Type:       nodeType(n),
			Size:       n.Size,
			CreatedAt:  n.CreatedAt,
			ModifiedAt: n.ModTime,
		}
		if !n.IsDir {
			entry, err := s.meta.FindByPath(ctx, n.Path)
			if err != nil {
				logging.WithContext(ctx).Warn("metadata lookup failed", zap.String("path", n.Path), zap.Error(err))
			}
			item.Metadata = entry
		}
		listing.Items = append(listing.Items, item)
	}

	sortItems(listing.Items)
	return listing, nil
}

// Search runs a search scoped to params.Scope. Callers who can only see
// part of the scope get results from their granted subtrees only.
func (s *Service) Search(ctx context.Context, id sharing.Identity, params search.Params) (*search.Page, error) {
	rel, d, err := s.authorize(ctx, id, params.Scope, sharing.LevelRead)
	if err != nil {
		return nil, err
	}
	params.Scope = rel
	params.Scopes = nil
	if d.AncestorOnly {
		params.Scopes = d.Scopes
	}
	return s.searcher.Search(ctx, params)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// authorize validates p and checks the caller holds required on it.
func (s *Service) authorize(ctx context.Context, id sharing.Identity, p string, required sharing.Level) (string, sharing.Decision, error) {
	rel, err := pathutil.Rel(p)
	if err != nil {
		return "", sharing.Decision{}, err
	}
	d, err := s.resolver.Resolve(ctx, id, rel, required)
	if err != nil {
		return "", d, err
	}
	return rel, d, nil
}

// metadataFailed records a metadata update that failed after the filesystem
// change and returns the warning to attach to the result.
func metadataFailed(ctx context.Context, op, p string, err error) string {
	metrics.RecordMetadataPartialFailure(op)
	logging.WithContext(ctx).Warn("metadata update failed after filesystem change",
		zap.String("operation", op),
		zap.String("path", p),
		zap.Error(err),
	)
	return fmt.Sprintf("%s succeeded but the index for %q was not updated: %v", op, p, err)
}

func nodeType(n local.Node) metadata.EntryType {
	if n.IsDir {
		return metadata.TypeFolder
	}
	return metadata.TypeFile
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.Type == metadata.TypeFolder) != (b.Type == metadata.TypeFolder) {
			return a.Type == metadata.TypeFolder
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}
