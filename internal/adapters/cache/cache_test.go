package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func exerciseRepository(t *testing.T, repo core.ProfileRepository, clk *clock) {
	ctx := context.Background()
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := repo.Get(ctx, "u1", "patterns:aggregate")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, repo.Set(ctx, &core.ProfileEntry{
		UserID: "u1", Target: "patterns:aggregate", Data: []byte(`{"emailCount":3}`), UpdatedAt: updated,
	}))
	got, err := repo.Get(ctx, "u1", "patterns:aggregate")
	require.NoError(t, err)
	assert.JSONEq(t, `{"emailCount":3}`, string(got.Data))
	assert.True(t, updated.Equal(got.UpdatedAt))

	require.NoError(t, repo.Set(ctx, &core.ProfileEntry{
		UserID: "u1", Target: "patterns:aggregate", Data: []byte(`{"emailCount":4}`), UpdatedAt: updated,
	}))
	got, err = repo.Get(ctx, "u1", "patterns:aggregate")
	require.NoError(t, err)
	assert.JSONEq(t, `{"emailCount":4}`, string(got.Data))

	_, err = repo.Get(ctx, "u2", "patterns:aggregate")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "u1", "patterns:aggregate"))
	_, err = repo.Get(ctx, "u1", "patterns:aggregate")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// pinned targets outlive any ttl and only go away on Delete
	require.NoError(t, repo.Set(ctx, &core.ProfileEntry{UserID: "u1", Target: "bm25", Data: []byte(`{}`), UpdatedAt: updated}))
	require.NoError(t, repo.Set(ctx, &core.ProfileEntry{UserID: "u1", Target: "patterns:colleague", Data: []byte(`{}`), UpdatedAt: updated}))
	require.NoError(t, repo.Set(ctx, &core.ProfileEntry{UserID: "u1", Target: "scratch", Data: []byte(`{}`), UpdatedAt: updated}))
	clk.t = clk.t.Add(24 * 365 * time.Hour)

	_, err = repo.Get(ctx, "u1", "bm25")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "u1", "patterns:colleague")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "u1", "scratch")
	assert.ErrorIs(t, err, core.ErrNotFound, "unpinned targets follow the ttl")

	require.NoError(t, repo.Delete(ctx, "u1", "patterns:colleague"))
	_, err = repo.Get(ctx, "u1", "patterns:colleague")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryCache(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(time.Hour, zap.NewNop(), 0)
	defer c.Stop()
	c.now = clk.now

	exerciseRepository(t, c, clk)
}

func TestMemoryCacheCleanup(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(time.Hour, zap.NewNop(), 0)
	defer c.Stop()
	c.now = clk.now

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, &core.ProfileEntry{UserID: "u", Target: "a"}))
	clk.t = clk.t.Add(30 * time.Minute)
	require.NoError(t, c.Set(ctx, &core.ProfileEntry{UserID: "u", Target: "b"}))
	clk.t = clk.t.Add(45 * time.Minute)

	require.NoError(t, c.Set(ctx, &core.ProfileEntry{UserID: "u", Target: "patterns:aggregate"}))
	clk.t = clk.t.Add(169 * time.Hour)
	require.NoError(t, c.Set(ctx, &core.ProfileEntry{UserID: "u", Target: "b"}))

	require.NoError(t, c.Cleanup(ctx))
	assert.Len(t, c.entries, 2)
	_, err := c.Get(ctx, "u", "b")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "u", "patterns:aggregate")
	assert.NoError(t, err)
}

func TestMemoryCacheCopiesData(t *testing.T) {
	c := NewMemoryCache(time.Hour, zap.NewNop(), 0)
	defer c.Stop()
	ctx := context.Background()

	data := []byte("abc")
	require.NoError(t, c.Set(ctx, &core.ProfileEntry{UserID: "u", Target: "t", Data: data}))
	data[0] = 'x'

	got, err := c.Get(ctx, "u", "t")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got.Data))
}

func TestSQLiteCache(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "profiles.db"), time.Hour, zap.NewNop(), 0)
	require.NoError(t, err)
	defer c.Stop()
	c.now = clk.now

	exerciseRepository(t, c, clk)

	require.NoError(t, c.Cleanup(context.Background()))
	var targets []string
	rows, err := c.db.Query("SELECT target FROM profile_cache ORDER BY target")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var target string
		require.NoError(t, rows.Scan(&target))
		targets = append(targets, target)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"bm25"}, targets, "cleanup keeps pinned entries")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	mem := NewMemoryCache(0, zap.NewNop(), 0)
	defer mem.Stop()
	mem.now = clk.now

	lite, err := NewSQLiteCache(filepath.Join(t.TempDir(), "profiles.db"), 0, zap.NewNop(), 0)
	require.NoError(t, err)
	defer lite.Stop()
	lite.now = clk.now

	for name, repo := range map[string]core.ProfileRepository{"memory": mem, "sqlite": lite} {
		require.NoError(t, repo.Set(ctx, &core.ProfileEntry{UserID: "u", Target: "scratch", Data: []byte(`{}`)}), name)
		_, err := repo.Get(ctx, "u", "scratch")
		assert.NoError(t, err, name)
	}

	clk.t = clk.t.Add(10 * 24 * 365 * time.Hour)
	require.NoError(t, mem.Cleanup(ctx))
	require.NoError(t, lite.Cleanup(ctx))
	for name, repo := range map[string]core.ProfileRepository{"memory": mem, "sqlite": lite} {
		_, err := repo.Get(ctx, "u", "scratch")
		assert.NoError(t, err, name)
	}
}
