package sharing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticGrants(grants ...Grant) GrantSource {
	return GrantSourceFunc(func(_ context.Context, userID int) ([]Grant, error) {
		var out []Grant
		for _, g := range grants {
			if g.UserID == userID {
				out = append(out, g)
			}
		}
		return out, nil
	})
}

func TestResolvePrefixGrants(t *testing.T) {
	r := NewResolver(staticGrants(Grant{UserID: 7, Path: "projects/alpha", Level: LevelWrite}))
	user := Identity{UserID: 7, Role: 2}

	tests := []struct {
		name     string
		path     string
		required Level
		allowed  bool
		level    Level
	}{
		{"descendant read", "projects/alpha/sub", LevelRead, true, LevelWrite},
		{"exact write", "projects/alpha", LevelWrite, true, LevelWrite},
		{"sibling", "projects/beta", LevelRead, false, LevelNone},
		{"ancestor read", "projects", LevelRead, true, LevelRead},
		{"ancestor write", "projects", LevelWrite, false, LevelRead},
		{"root read", "", LevelRead, true, LevelRead},
		{"name prefix is not a path prefix", "projects/alphabet", LevelRead, false, LevelNone},
		{"windows form", `C:\projects\alpha\x`, LevelWrite, true, LevelWrite},
		{"admin level", "projects/alpha", LevelAdmin, false, LevelWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Resolve(context.Background(), user, tt.path, tt.required)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.level, d.Level)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}

func TestResolveDenialReasons(t *testing.T) {
	r := NewResolver(staticGrants(Grant{UserID: 1, Path: "reports", Level: LevelRead}))

	_, err := r.Resolve(context.Background(), Identity{UserID: 2}, "reports", LevelRead)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonNoGrants, denied.Reason)

	_, err = r.Resolve(context.Background(), Identity{UserID: 1}, "reports", LevelWrite)
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonInsufficient, denied.Reason)
}

func TestResolveAdminBypass(t *testing.T) {
	called := false
	r := NewResolver(GrantSourceFunc(func(context.Context, int) ([]Grant, error) {
		called = true
		return nil, nil
	}))

	for _, p := range []string{"", "anything/at/all", "x"} {
		d, err := r.Resolve(context.Background(), Identity{UserID: 99, Role: RoleAdmin}, p, LevelAdmin)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, LevelAdmin, d.Level)
	}
	assert.False(t, called, "admin checks must not load grants")
}

func TestResolveHighestLevelWins(t *testing.T) {
	r := NewResolver(staticGrants(
		Grant{UserID: 3, Path: "docs", Level: LevelRead},
		Grant{UserID: 3, Path: "docs/team", Level: LevelWrite},
	))

	d, err := r.Resolve(context.Background(), Identity{UserID: 3}, "docs/team/notes", LevelWrite)
	require.NoError(t, err)
	assert.Equal(t, LevelWrite, d.Level)

	d, err = r.Resolve(context.Background(), Identity{UserID: 3}, "docs/other", LevelWrite)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, LevelRead, d.Level)
}

func TestResolveGrantSourceError(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(GrantSourceFunc(func(context.Context, int) ([]Grant, error) { return nil, boom }))

	_, err := r.Resolve(context.Background(), Identity{UserID: 1}, "x", LevelRead)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestDecisionPermitsAncestorOnly(t *testing.T) {
	r := NewResolver(staticGrants(Grant{UserID: 5, Path: "reports/2024", Level: LevelWrite}))

	d, err := r.Resolve(context.Background(), Identity{UserID: 5}, "reports", LevelRead)
	require.NoError(t, err)
	assert.True(t, d.AncestorOnly)
	assert.Equal(t, []string{"reports/2024"}, d.Scopes)

	assert.True(t, d.Permits("reports/2024"))
	assert.True(t, d.Permits("reports/2024/q1"))
	assert.False(t, d.Permits("reports/2023"))

	d, err = r.Resolve(context.Background(), Identity{UserID: 5}, "reports/2024", LevelRead)
	require.NoError(t, err)
	assert.False(t, d.AncestorOnly)
	assert.True(t, d.Permits("reports/2024/anything"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"read", LevelRead},
		{"write", LevelWrite},
		{"admin", LevelAdmin},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.in, got.String())
	}

	_, err := ParseLevel("owner")
	assert.Error(t, err)
}
