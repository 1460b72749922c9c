package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitnotes/entitlements/pkg/catalog"
)

func TestNewValidatesPlans(t *testing.T) {
	t.Parallel()

	t.Run("loads the default catalog", func(t *testing.T) {
		t.Parallel()

		cat, err := catalog.New(context.Background(), catalog.DefaultPlans(), "free")
		require.NoError(t, err)
		assert.Equal(t, "free", cat.DefaultPlanID())
		assert.Len(t, cat.Plans(), 3)
	})

	t.Run("rejects a missing default plan", func(t *testing.T) {
		t.Parallel()

		_, err := catalog.New(context.Background(), catalog.DefaultPlans(), "enterprise")
		require.ErrorIs(t, err, catalog.ErrInvalidPlanConfiguration)
	})

	t.Run("rejects ceilings below unlimited", func(t *testing.T) {
		t.Parallel()

		src := catalog.StaticSource{
			"bad": {ID: "bad", Ceilings: map[catalog.ResourceKind]int64{catalog.ResourceNote: -2}},
		}
		_, err := catalog.New(context.Background(), src, "bad")
		require.ErrorIs(t, err, catalog.ErrInvalidPlanConfiguration)
	})

	t.Run("rejects plan id mismatch", func(t *testing.T) {
		t.Parallel()

		src := catalog.StaticSource{"a": {ID: "b"}}
		_, err := catalog.New(context.Background(), src, "a")
		require.ErrorIs(t, err, catalog.ErrInvalidPlanConfiguration)
	})
}

func TestCeilingResolution(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New(context.Background(), catalog.DefaultPlans(), "free")
	require.NoError(t, err)

	ceiling, err := cat.Ceiling("free", catalog.ResourceGalaxy)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ceiling)

	ceiling, err = cat.Ceiling("pro_monthly", catalog.ResourceNote)
	require.NoError(t, err)
	assert.Equal(t, catalog.Unlimited, ceiling)

	_, err = cat.Ceiling("no_such_plan", catalog.ResourceNote)
	require.ErrorIs(t, err, catalog.ErrPlanNotFound)

	_, err = cat.Ceiling("free", catalog.ResourceKind("widgets"))
	require.ErrorIs(t, err, catalog.ErrUnknownResource)
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: free
  name: Free
  interval: none
  ceilings:
    note: 50
    task: 100
    galaxy: 1
    aiInsight: 3
- id: pro_monthly
  name: Pro
  interval: monthly
  ceilings:
    note: -1
    task: -1
    galaxy: 20
    aiInsight: 50
`), 0o644))

	cat, err := catalog.New(context.Background(), catalog.YAMLSource{Path: path}, "free")
	require.NoError(t, err)

	plan, err := cat.GetPlan("pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, catalog.IntervalMonthly, plan.Interval)
	assert.Equal(t, catalog.Unlimited, plan.Ceilings[catalog.ResourceTask])
	assert.Equal(t, int64(50), plan.Ceilings[catalog.ResourceAIInsight])
}

func TestYAMLSourceMissingFile(t *testing.T) {
	t.Parallel()

	_, err := catalog.New(context.Background(), catalog.YAMLSource{Path: "does-not-exist.yaml"}, "free")
	require.ErrorIs(t, err, catalog.ErrFailedToLoadPlans)
}
