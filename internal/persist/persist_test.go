package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "layers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestSaveOverrideMerges(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.SaveOverride(ctx, "user-fill-1", Override{Visible: boolPtr(false)}))
	require.NoError(t, s.SaveOverride(ctx, "user-fill-1", Override{Opacity: floatPtr(0.4)}))

	got, err := s.Overrides(ctx)
	require.NoError(t, err)
	require.Contains(t, got, "user-fill-1")

	o := got["user-fill-1"]
	require.NotNil(t, o.Visible)
	assert.False(t, *o.Visible, "later opacity-only save must not clear visibility")
	require.NotNil(t, o.Opacity)
	assert.Equal(t, 0.4, *o.Opacity)
	assert.Nil(t, o.Name)
}

func TestSaveOverrideName(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.SaveOverride(ctx, "cog-1", Override{Name: strPtr("Elevation")}))
	require.NoError(t, s.SaveOverride(ctx, "cog-1", Override{Visible: boolPtr(true)}))

	got, err := s.Overrides(ctx)
	require.NoError(t, err)
	require.NotNil(t, got["cog-1"].Name)
	assert.Equal(t, "Elevation", *got["cog-1"].Name)
}

func TestDeleteOverride(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.SaveOverride(ctx, "user-fill-1", Override{Visible: boolPtr(true)}))
	require.NoError(t, s.DeleteOverride(ctx, "user-fill-1"))

	got, err := s.Overrides(ctx)
	require.NoError(t, err)
	assert.NotContains(t, got, "user-fill-1")
}

func TestTombstones(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.AddTombstone(ctx, "cog-1"))
	require.NoError(t, s.AddTombstone(ctx, "cog-1"), "re-adding is idempotent")
	require.NoError(t, s.AddTombstone(ctx, "vector-2"))

	ids, err := s.Tombstones(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cog-1", "vector-2"}, ids)

	require.NoError(t, s.RemoveTombstone(ctx, "cog-1"))
	ids, err = s.Tombstones(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"vector-2"}, ids)
}

func TestNilStoreIsInert(t *testing.T) {
	ctx := context.Background()
	var s *Store

	assert.NoError(t, s.SaveOverride(ctx, "x", Override{}))
	assert.NoError(t, s.AddTombstone(ctx, "x"))
	assert.NoError(t, s.Close())

	got, err := s.Overrides(ctx)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOverridesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "layers.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveOverride(ctx, "user-fill-1", Override{Opacity: floatPtr(0.8)}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Overrides(ctx)
	require.NoError(t, err)
	require.NotNil(t, got["user-fill-1"].Opacity)
	assert.Equal(t, 0.8, *got["user-fill-1"].Opacity)
}
