// Package sharing resolves path-scoped permissions and manages the grant table.
//
// A user's grants are a flat list of (path prefix, level) pairs. A grant covers
// its prefix and everything beneath it. A user may also navigate the ancestors
// of a granted folder, but only to read them and only to reach the granted
// subtree.
package sharing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metrics"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
)

// RoleAdmin is the identity role that bypasses path scoping.
const RoleAdmin = 1

// Denial reasons.
const (
	ReasonNoGrants     = "no permission for any folder"
	ReasonInsufficient = "insufficient permission for this folder"
)

// ErrPermissionDenied matches every *DeniedError.
var ErrPermissionDenied = errors.New("permission denied")

// Identity is the authenticated caller.
type Identity struct {
	UserID int `json:"id"`
	Role   int `json:"role"`
}

// IsAdmin reports whether the identity bypasses grant checks.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// DeniedError describes a refused permission check.
type DeniedError struct {
	Path     string
	Required Level
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s (%s required on %q)", ErrPermissionDenied, e.Reason, e.Required, e.Path)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// GrantSource loads the grants held by a user.
type GrantSource interface {
	GrantsForUser(ctx context.Context, userID int) ([]Grant, error)
}

// GrantSourceFunc adapts a function to GrantSource.
type GrantSourceFunc func(ctx context.Context, userID int) ([]Grant, error)

func (f GrantSourceFunc) GrantsForUser(ctx context.Context, userID int) ([]Grant, error) {
	return f(ctx, userID)
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Path    string
	Level   Level // effective level on Path
	// AncestorOnly is set when access comes solely from grants beneath Path.
	// Scopes then lists those granted prefixes.
	AncestorOnly bool
	Scopes       []string
	Reason       string
}

// Permits reports whether p (a cleaned key at or below Decision.Path) may be
// shown to the caller. Without ancestor-only access everything under an
// allowed path is visible.
func (d Decision) Permits(p string) bool {
	if !d.Allowed {
		return false
	}
	if !d.AncestorOnly {
		return true
	}
	for _, scope := range d.Scopes {
		if pathutil.HasPrefix(scope, p) || pathutil.HasPrefix(p, scope) {
			return true
		}
	}
	return false
}

// Resolver answers permission checks against a GrantSource.
type Resolver struct {
	source GrantSource
}

// NewResolver creates a resolver over the given grant source.
func NewResolver(source GrantSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve computes the caller's effective level on p. A denied check returns
// the decision together with a *DeniedError.
func (r *Resolver) Resolve(ctx context.Context, id Identity, p string, required Level) (Decision, error) {
	p = pathutil.Clean(p)

	if id.IsAdmin() {
		metrics.RecordPermissionCheck(true)
		return Decision{Allowed: true, Path: p, Level: LevelAdmin}, nil
	}

	grants, err := r.source.GrantsForUser(ctx, id.UserID)
	if err != nil {
		return Decision{Path: p}, fmt.Errorf("load grants: %w", err)
	}

	d := evaluate(grants, p)
	if len(grants) == 0 {
		d.Reason = ReasonNoGrants
	} else if !d.Level.Satisfies(required) {
		d.Reason = ReasonInsufficient
	}

	if d.Reason != "" {
		metrics.RecordPermissionCheck(false)
		logging.WithContext(ctx).Warn("permission denied",
			zap.Int("user_id", id.UserID),
			zap.String("path", p),
			zap.Stringer("required", required),
			zap.String("reason", d.Reason),
		)
		return d, &DeniedError{Path: p, Required: required, Reason: d.Reason}
	}

	d.Allowed = true
	metrics.RecordPermissionCheck(true)
	return d, nil
}

// evaluate folds the grant list into a decision for p. Covering grants give
// their full level; grants beneath p only allow reading p.
func evaluate(grants []Grant, p string) Decision {
	d := Decision{Path: p}
	var covered, below Level

	for _, g := range grants {
		if g.Level <= LevelNone {
			continue
		}
		gp := pathutil.Clean(g.Path)
		switch {
		case pathutil.HasPrefix(p, gp):
			covered = max(covered, g.Level)
		case pathutil.HasPrefix(gp, p):
			below = LevelRead
			d.Scopes = append(d.Scopes, gp)
		}
	}

	d.Level = max(covered, below)
	if covered == LevelNone && below != LevelNone {
		d.AncestorOnly = true
	} else {
		d.Scopes = nil
	}
	return d
}
