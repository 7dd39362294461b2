// Package search serves paginated, cached queries over the metadata index.
//
// Pages are cached whole under a key built from every filter parameter and
// expire after a fixed TTL. Writes never invalidate the cache, so a result can
// be stale for at most one TTL.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
	"github.com/rameshkrishnan-s/FileHub/internal/storage/local"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
	DefaultTTL   = 300 * time.Second
)

// Params are the caller-facing search parameters.
type Params struct {
	Query string
	Type  metadata.EntryType
	Scope string
	// Scopes narrows the search to these subtrees of Scope. Callers that may
	// only see part of Scope set it; empty means all of Scope.
	Scopes []string
	Page   int
	Limit  int
}

// Result is one search hit.
type Result struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	Type      metadata.EntryType `json:"type"`
	Path      string             `json:"path"`
	MimeType  string             `json:"mimeType,omitempty"`
	FileID    *int64             `json:"fileId,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// Page is one page of results.
type Page struct {
	Results    []Result   `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// Index runs filtered, paginated queries.
type Index interface {
	Search(ctx context.Context, q metadata.Query) ([]metadata.Entry, int64, error)
}

// Statter looks up the live node behind a hit.
type Statter interface {
	Stat(p string) (local.Node, error)
}

// Cache stores encoded pages with a fixed TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Searcher answers search requests.
type Searcher struct {
	index Index
	stat  Statter
	cache Cache
}

// New creates a Searcher. stat and cache may be nil.
func New(index Index, stat Statter, cache Cache) *Searcher {
	return &Searcher{index: index, stat: stat, cache: cache}
}

// Search returns the requested page, from cache when possible.
func (s *Searcher) Search(ctx context.Context, p Params) (*Page, error) {
	p = normalize(p)
	key := cacheKey(p)

	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var page Page
			if err := json.Unmarshal(raw, &page); err == nil {
				metrics.RecordSearchCache(true)
				return &page, nil
			}
			logging.WithContext(ctx).Warn("discarding undecodable cached page", zap.String("key", key))
		}
		metrics.RecordSearchCache(false)
	}

	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = []string{p.Scope}
	}

	entries, total, err := s.index.Search(ctx, metadata.Query{
		Text:   p.Query,
		Type:   p.Type,
		Scopes: scopes,
		Limit:  p.Limit,
		Offset: (p.Page - 1) * p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	page := &Page{
		Results: make([]Result, 0, len(entries)),
		Pagination: Pagination{
			Total:      total,
			Page:       p.Page,
			Limit:      p.Limit,
			TotalPages: int((total + int64(p.Limit) - 1) / int64(p.Limit)),
		},
	}
	for _, e := range entries {
		page.Results = append(page.Results, s.result(e))
	}

	if s.cache != nil {
		raw, err := json.Marshal(page)
		if err == nil {
			s.cache.Set(ctx, key, raw)
		}
	}
	return page, nil
}

// result converts an entry, preferring the live node's birth time and type.
func (s *Searcher) result(e metadata.Entry) Result {
	r := Result{
		ID:        e.ID,
		Name:      e.FileName,
		Type:      e.Type,
		Path:      e.FilePath,
		MimeType:  e.MimeType,
		FileID:    e.FileID,
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
	if s.stat == nil {
		return r
	}
	if n, err := s.stat.Stat(e.FilePath); err == nil {
		r.CreatedAt = n.CreatedAt.UTC()
		r.Type = metadata.TypeFile
		if n.IsDir {
			r.Type = metadata.TypeFolder
		}
	}
	return r
}

func normalize(p Params) Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	p.Scope = pathutil.Clean(p.Scope)
	if len(p.Scopes) > 0 {
		scopes := make([]string, len(p.Scopes))
		for i, sc := range p.Scopes {
			scopes[i] = pathutil.Clean(sc)
		}
		sort.Strings(scopes)
		p.Scopes = scopes
	}
	return p
}

// cacheKey encodes every parameter that changes the page. Strings are quoted
// so no combination of values can collide.
func cacheKey(p Params) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(p.Query))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(string(p.Type)))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(p.Scope))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(p.Page))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(p.Limit))
	for _, sc := range p.Scopes {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(sc))
	}
	return b.String()
}
