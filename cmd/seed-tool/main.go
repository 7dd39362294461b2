// seed-tool prepares a FileHub deployment: it copies seed files into the
// storage root, indexes them, writes grants and mints test tokens.
//
// Designed to run once as an init container, e.g.
//
//	seed-tool -data /testdata -grant 2:docs:write -elevate 3:reports -token 2:2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/auth"
	"github.com/rameshkrishnan-s/FileHub/internal/config"
	"github.com/rameshkrishnan-s/FileHub/internal/database"
	"github.com/rameshkrishnan-s/FileHub/internal/logging"
	"github.com/rameshkrishnan-s/FileHub/internal/metadata"
	"github.com/rameshkrishnan-s/FileHub/internal/pathutil"
	"github.com/rameshkrishnan-s/FileHub/internal/retry"
	"github.com/rameshkrishnan-s/FileHub/internal/search"
	"github.com/rameshkrishnan-s/FileHub/internal/sharing"
	"github.com/rameshkrishnan-s/FileHub/internal/storage/local"
	"github.com/rameshkrishnan-s/FileHub/internal/vfs"
)

type grantSpec struct {
	userID int
	path   string
	level  sharing.Level
}

type tokenSpec struct {
	userID int
	role   int
}

func main() {
	var grants, elevations []grantSpec
	var tokens []tokenSpec

	dataDir := flag.String("data", "", "Directory copied into the storage root")
	reconcile := flag.Bool("reconcile", true, "Index the storage root after seeding")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens minted with -token")
	flag.Func("grant", "Grant as user:path:level (repeatable)", func(s string) error {
		g, err := parseGrant(s, true)
		if err == nil {
			grants = append(grants, g)
		}
		return err
	})
	flag.Func("elevate", "Raise user:path to at least write (repeatable)", func(s string) error {
		g, err := parseGrant(s, false)
		if err == nil {
			elevations = append(elevations, g)
		}
		return err
	})
	flag.Func("token", "Print a signed token for user:role (repeatable)", func(s string) error {
		t, err := parseToken(s)
		if err == nil {
			tokens = append(tokens, t)
		}
		return err
	})
	flag.Parse()

	// Initialize logging
	if err := logging.Init(logging.Config{Level: "info", Format: "console"}); err != nil {
		panic("logging init: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("FileHub seed-tool starting...")

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("config error", zap.Error(err))
	}

	ctx := context.Background()

	db, err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) (*database.DB, error) {
		db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		return db, retry.Transient(err)
	}, func(attempt int, err error) {
		logging.Info("waiting for database", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		logging.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	root, err := local.New(local.Config{RootPath: cfg.StoragePath, CreateDirs: true})
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}

	if *dataDir != "" {
		n, err := copyTree(ctx, root, *dataDir)
		if err != nil {
			logging.Fatal("seeding files failed", zap.Error(err))
		}
		logging.Info("seeded files", zap.String("dir", *dataDir), zap.Int("entries", n))
	}

	if *reconcile {
		metaStore := metadata.NewStore(db)
		svc, err := vfs.New(root, metaStore, sharing.NewResolver(sharing.NewGrantStore(db)), search.New(metaStore, root, nil), nil, vfs.Config{
			ReconcileIgnore: cfg.ReconcileIgnore,
		})
		if err != nil {
			logging.Fatal("service init failed", zap.Error(err))
		}
		if _, err := svc.ReconcileAll(ctx); err != nil {
			logging.Fatal("reconcile failed", zap.Error(err))
		}
	}

	grantStore := sharing.NewGrantStore(db)
	for _, g := range grants {
		if err := grantStore.SetGrant(ctx, g.userID, g.path, g.level); err != nil {
			logging.Fatal("grant failed", zap.Int("user_id", g.userID), zap.String("path", g.path), zap.Error(err))
		}
		logging.Info("grant set", zap.Int("user_id", g.userID), zap.String("path", g.path), zap.String("permission", g.level.String()))
	}
	for _, g := range elevations {
		level, err := grantStore.Elevate(ctx, g.userID, g.path, sharing.LevelWrite)
		if err != nil {
			logging.Fatal("elevate failed", zap.Int("user_id", g.userID), zap.String("path", g.path), zap.Error(err))
		}
		logging.Info("access granted", zap.Int("user_id", g.userID), zap.String("path", g.path), zap.String("permission", level.String()))
	}

	if len(tokens) > 0 {
		a := auth.New(cfg.JWTSecret)
		for _, t := range tokens {
			tok, err := a.Sign(sharing.Identity{UserID: t.userID, Role: t.role}, *tokenTTL)
			if err != nil {
				logging.Fatal("sign token failed", zap.Error(err))
			}
			fmt.Printf("user=%d role=%d token=%s\n", t.userID, t.role, tok)
		}
	}

	logging.Info("seeding complete")
}

// parseGrant reads "user:path:level", or "user:path" when withLevel is false.
// The path may itself contain colons.
func parseGrant(s string, withLevel bool) (grantSpec, error) {
	var g grantSpec
	user, rest, ok := strings.Cut(s, ":")
	if !ok {
		return g, fmt.Errorf("%q: want user:path", s)
	}
	id, err := strconv.Atoi(user)
	if err != nil || id <= 0 {
		return g, fmt.Errorf("%q: invalid user id", s)
	}
	g.userID = id
	g.level = sharing.LevelWrite

	if withLevel {
		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return g, fmt.Errorf("%q: want user:path:level", s)
		}
		if g.level, err = sharing.ParseLevel(rest[i+1:]); err != nil {
			return g, err
		}
		rest = rest[:i]
	}

	if g.path, err = pathutil.Rel(rest); err != nil {
		return g, fmt.Errorf("%q: %w", s, err)
	}
	return g, nil
}

func parseToken(s string) (tokenSpec, error) {
	user, role, ok := strings.Cut(s, ":")
	if !ok {
		return tokenSpec{}, fmt.Errorf("%q: want user:role", s)
	}
	id, err := strconv.Atoi(user)
	if err != nil || id <= 0 {
		return tokenSpec{}, fmt.Errorf("%q: invalid user id", s)
	}
	r, err := strconv.Atoi(role)
	if err != nil {
		return tokenSpec{}, fmt.Errorf("%q: invalid role", s)
	}
	return tokenSpec{userID: id, role: r}, nil
}

// copyTree mirrors dir into the storage root. Existing entries are kept.
func copyTree(ctx context.Context, root *local.Root, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			if _, err := root.Mkdir(rel); err != nil && !errors.Is(err, fs.ErrExist) {
				return err
			}
		case d.Type().IsRegular():
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			_, err = root.Put(ctx, rel, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("put %s: %w", rel, err)
			}
		default:
			return nil
		}
		count++
		return nil
	})
	return count, err
}
