package vfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/storage/local"
)

// ReconcileReport summarizes a reconcile pass.
type ReconcileReport struct {
	Scanned  int           `json:"scanned"`
	Upserted int           `json:"upserted"`
	Removed  int64         `json:"removed"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Reconcile brings the metadata index in line with the storage tree: nodes
// without a row are indexed, rows whose type changed are refreshed, and rows
// without a node are dropped. Only admins may run it.
func (s *Service) Reconcile(ctx context.Context, id sharing.Identity) (*ReconcileReport, error) {
	if _, _, err := s.authorize(ctx, id, "", sharing.LevelAdmin); err != nil {
		return nil, err
	}
	return s.reconcile(ctx)
}

func (s *Service) reconcile(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()

	var mu sync.Mutex
	onDisk := make(map[string]local.Node)
	err := s.root.Walk(ctx, func(n local.Node) error {
		if s.ignored(n) {
			if n.IsDir {
				return local.SkipDir
			}
			return nil
		}
		mu.Lock()
		onDisk[n.Path] = n
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk storage: %w", err)
	}

	indexed, err := s.meta.Paths(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	report := &ReconcileReport{Scanned: len(onDisk)}
	for p, n := range onDisk {
		typ := nodeType(n)
		if existing, ok := indexed[p]; ok && existing == typ {
			continue
		}
		entry := &metadata.Entry{FileName: n.Name, FilePath: p, Type: typ}
		if typ == metadata.TypeFile {
			if mime, err := s.root.ContentType(p); err == nil {
				entry.MimeType = mime
			}
		}
		if err := s.meta.Upsert(ctx, entry); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("index %q: %v", p, err))
			continue
		}
		report.Upserted++
	}

	for p := range indexed {
		if _, ok := onDisk[p]; ok {
			continue
		}
		n, err := s.meta.DeleteByPath(ctx, p)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("drop %q: %v", p, err))
			continue
		}
		report.Removed += n
	}

	report.Duration = time.Since(start)
	metrics.RecordReconcile(report.Upserted, int(report.Removed))
	logging.WithContext(ctx).Info("reconcile complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("upserted", report.Upserted),
		zap.Int64("removed", report.Removed),
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// ReconcileAll runs reconcile without a caller identity. Startup and the
// seed tool use it.
func (s *Service) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	return s.reconcile(ctx)
}

// ignored reports whether a node matches a reconcile ignore pattern, either
// by its full key or by its name.
func (s *Service) ignored(n local.Node) bool {
	for _, pattern := range s.cfg.ReconcileIgnore {
		if ok, _ := doublestar.Match(pattern, n.Path); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, n.Name); ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid reconcile ignore pattern %q", p)
		}
	}
	return nil
}
