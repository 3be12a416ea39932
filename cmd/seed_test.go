package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dataminer/internal/store"
)

func newSeedStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestApplySeed_CreatesAndSkips(t *testing.T) {
	st := newSeedStore(t)
	ctx := context.Background()

	data := seedData{Sources: []seedSource{
		{
			SourceID:        "US_SDNY",
			SourceName:      "SDNY",
			CountryCode:     "us",
			PrimaryLanguage: "EN",
			Phase:           1,
			DefaultProfile:  true,
		},
		{SourceID: "DE_BGH", SourceName: "BGH"},
	}}

	created, skipped, err := applySeed(ctx, st, data)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, skipped)

	src, err := st.GetSource(ctx, "US_SDNY")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, "US", *src.CountryCode)
	assert.Equal(t, "en", *src.PrimaryLanguage)

	profiles, err := st.ListProfiles(ctx, "US_SDNY")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "default", profiles[0].ProfileName)
	assert.True(t, profiles[0].IsDefault)

	// Default phase applies when unset
	bgh, err := st.GetSource(ctx, "DE_BGH")
	require.NoError(t, err)
	assert.Equal(t, 1, bgh.Phase)

	// Rerunning is idempotent
	created, skipped, err = applySeed(ctx, st, data)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, skipped)
}

func TestApplySeed_RejectsIncompleteEntry(t *testing.T) {
	st := newSeedStore(t)

	_, _, err := applySeed(context.Background(), st, seedData{
		Sources: []seedSource{{SourceID: "X"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing source_id or source_name")
}

func TestSeedFileParses(t *testing.T) {
	raw, err := os.ReadFile("../seed/sources.yaml")
	require.NoError(t, err)

	var data seedData
	require.NoError(t, yaml.Unmarshal(raw, &data))
	require.NotEmpty(t, data.Sources)
	for _, entry := range data.Sources {
		assert.NotEmpty(t, entry.SourceID)
		assert.NotEmpty(t, entry.SourceName)
	}
}
