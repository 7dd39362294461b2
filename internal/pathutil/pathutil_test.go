package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`C:\Users\docs`, "Users/docs"},
		{`C:/Users/docs`, "Users/docs"},
		{`D:reports`, "reports"},
		{`projects\alpha\sub`, "projects/alpha/sub"},
		{"projects/alpha", "projects/alpha"},
		{`C:\D:\x`, "x"},
		{"c:/lower", "c:/lower"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, seed := range []string{`C:\a`, `C:C:/b`, `\\server\share`, "A:", `Z:\\`, "x/y"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, p string) {
		once := Normalize(p)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", p, once, twice)
		}
	})
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"./reports/", "reports"},
		{`C:\reports\2024\`, "reports/2024"},
		{"/reports//2024", "reports/2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), "Clean(%q)", tt.in)
	}
}

func TestRelRejectsTraversal(t *testing.T) {
	for _, p := range []string{"..", "../etc", `reports\..\..\etc`, "a/../../b"} {
		_, err := Rel(p)
		assert.ErrorIs(t, err, ErrOutsideRoot, "Rel(%q)", p)
	}

	rel, err := Rel(`C:\reports\2024`)
	require.NoError(t, err)
	assert.Equal(t, "reports/2024", rel)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reports", "2024"), 0o755))

	rel, abs, err := Resolve(root, "/reports/2024/new")
	require.NoError(t, err)
	assert.Equal(t, "reports/2024/new", rel)
	assert.Equal(t, filepath.Join(root, "reports", "2024", "new"), abs)

	_, _, err = Resolve(root, "../outside")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, _, err := Resolve(root, "link/secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		p, prefix string
		want      bool
	}{
		{"projects/alpha/sub", "projects/alpha", true},
		{"projects/alpha", "projects/alpha", true},
		{"projects/alphabet", "projects/alpha", false},
		{"projects", "projects/alpha", false},
		{"anything", "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPrefix(tt.p, tt.prefix), "HasPrefix(%q, %q)", tt.p, tt.prefix)
	}
}

func TestValidateName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, "ValidateName(%q)", bad)
	}
	assert.NoError(t, ValidateName("q1-2"))
}

func TestJoinAndParent(t *testing.T) {
	assert.Equal(t, "docs", Join("", "docs"))
	assert.Equal(t, "reports/2024", Join("reports", "2024"))
	assert.Equal(t, "reports", Parent("reports/2024"))
	assert.Equal(t, "", Parent("reports"))
}
