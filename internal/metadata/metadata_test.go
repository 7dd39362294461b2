package metadata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rameshkrishnan-s/FileHub/internal/database"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return NewStore(db, WithClock(tickingClock()))
}

func TestUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fileID := int64(12)
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: `reports\2024\summary.pdf`, MimeType: "application/pdf", FileID: &fileID}))

	e, err := s.FindByPath(ctx, "reports/2024/summary.pdf")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "summary.pdf", e.FileName)
	assert.Equal(t, TypeFile, e.Type)
	assert.Equal(t, "application/pdf", e.MimeType)
	require.NotNil(t, e.FileID)
	assert.Equal(t, int64(12), *e.FileID)

	first := e.CreatedAt
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "reports/2024/summary.pdf", MimeType: "application/pdf"}))
	e, err = s.FindByPath(ctx, "reports/2024/summary.pdf")
	require.NoError(t, err)
	assert.True(t, first.Equal(e.CreatedAt), "created_at must survive upsert")
	assert.True(t, e.UpdatedAt.After(first))
	require.NotNil(t, e.FileID, "file_id kept when the update carries none")

	missing, err := s.FindByPath(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRenamePathPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "a/old", Type: TypeFolder}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "a/old/child.txt"}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "a/older"}))
	before, err := s.FindByPath(ctx, "a/old")
	require.NoError(t, err)

	found, err := s.RenamePath(ctx, "a/old", "a/new")
	require.NoError(t, err)
	assert.True(t, found)

	gone, err := s.FindByPath(ctx, "a/old")
	require.NoError(t, err)
	assert.Nil(t, gone)

	after, err := s.FindByPath(ctx, "a/new")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, "new", after.FileName)
	assert.Equal(t, TypeFolder, after.Type)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	child, err := s.FindByPath(ctx, "a/new/child.txt")
	require.NoError(t, err)
	assert.NotNil(t, child, "descendants follow the rename")

	sibling, err := s.FindByPath(ctx, "a/older")
	require.NoError(t, err)
	assert.NotNil(t, sibling, "name-prefix sibling untouched")
}

func TestRenamePathReplacesStaleTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "x", Type: TypeFolder}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "y", Type: TypeFile}))

	found, err := s.RenamePath(ctx, "x", "y")
	require.NoError(t, err)
	assert.True(t, found)

	e, err := s.FindByPath(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, TypeFolder, e.Type)
}

func TestRenamePathMissingRow(t *testing.T) {
	found, err := newTestStore(t).RenamePath(context.Background(), "ghost", "still-ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteByPathTolerant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.DeleteByPath(ctx, "never-existed")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "q1", Type: TypeFolder}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "q1/q1-1", Type: TypeFolder}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "q1-1", Type: TypeFolder}))

	n, err = s.DeleteByPath(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	e, err := s.FindByPath(ctx, "q1-1")
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestSearchPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 45; i++ {
		require.NoError(t, s.Upsert(ctx, &Entry{FilePath: fmt.Sprintf("invoices/invoice-%02d.pdf", i)}))
	}
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "other/readme.md"}))

	page, total, err := s.Search(ctx, Query{Text: "INVOICE", Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Equal(t, int64(45), total)
	require.Len(t, page, 5)
	assert.Equal(t, "invoice-04.pdf", page[0].FileName)
	assert.Equal(t, "invoice-00.pdf", page[4].FileName)

	page, _, err = s.Search(ctx, Query{Text: "invoice", Limit: 20})
	require.NoError(t, err)
	require.Len(t, page, 20)
	assert.Equal(t, "invoice-44.pdf", page[0].FileName, "newest first")
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, e := range []Entry{
		{FilePath: "reports", Type: TypeFolder},
		{FilePath: "reports/2024", Type: TypeFolder},
		{FilePath: "reports/2024/q1.xlsx"},
		{FilePath: "reports-archive/q1.xlsx"},
		{FilePath: "misc/100%_done.txt"},
	} {
		e := e
		require.NoError(t, s.Upsert(ctx, &e))
	}

	tests := []struct {
		name  string
		query Query
		want  int64
	}{
		{"scope is segment aware", Query{Scopes: []string{"reports"}}, 3},
		{"text matches path", Query{Text: "2024"}, 2},
		{"type filter", Query{Type: TypeFolder}, 2},
		{"combined", Query{Text: "q1", Scopes: []string{"reports"}, Type: TypeFile}, 1},
		{"several scopes", Query{Scopes: []string{"reports/2024", "misc"}}, 3},
		{"empty scope means all", Query{Scopes: []string{""}}, 5},
		{"wildcards are literal", Query{Text: "100%_"}, 1},
		{"percent alone is literal", Query{Text: "%"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := s.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "Berichte/Übersicht.pdf"}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "Berichte/ÉTÉ.txt"}))

	for _, text := range []string{"übersicht", "ÜBERSICHT", "été"} {
		_, total, err := s.Search(ctx, Query{Text: text})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total, text)
	}
}

func TestPaths(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "a", Type: TypeFolder}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "a/b.txt"}))
	require.NoError(t, s.Upsert(ctx, &Entry{FilePath: "c.txt"}))

	paths, err := s.Paths(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]EntryType{"a": TypeFolder, "a/b.txt": TypeFile}, paths)
}

func TestParseType(t *testing.T) {
	for _, ok := range []string{"", "file", "folder"} {
		_, err := ParseType(ok)
		assert.NoError(t, err, ok)
	}
	_, err := ParseType("symlink")
	assert.Error(t, err)
}
