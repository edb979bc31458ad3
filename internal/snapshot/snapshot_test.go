package snapshot

import (
	"chschema/internal/schema"
	"chschema/internal/storage"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func canonical(t *testing.T) []schema.Definition {
	t.Helper()
	defs, err := schema.Canonicalize([]schema.Definition{
		{
			Kind: schema.KindTable, Database: "db", Name: "t",
			Columns: []schema.Column{{Name: "id", Type: "UInt64"}, {Name: "v", Type: "Nullable(String)"}},
			Engine:  "MergeTree", OrderBy: []string{"id"},
		},
		{Kind: schema.KindView, Database: "db", Name: "v", Query: "SELECT id FROM db.t", DependsOn: []string{"t"}},
	}, schema.CanonicalOptions{})
	require.NoError(t, err)
	return defs
}

func TestRoundTrip(t *testing.T) {
	defs := canonical(t)
	snap := New(defs, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	data, err := Marshal(snap)
	require.NoError(t, err)

	back, err := Unmarshal(data, schema.CanonicalOptions{})
	require.NoError(t, err)
	assert.True(t, snap.GeneratedAt.Equal(back.GeneratedAt))
	require.Len(t, back.Definitions, len(defs))
	for i := range defs {
		assert.True(t, schema.Equal(defs[i], back.Definitions[i]), "definition %d", i)
	}
}

func TestUnmarshalRejectsFutureVersion(t *testing.T) {
	_, err := Unmarshal([]byte(`{"version": 99, "definitions": []}`), schema.CanonicalOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported snapshot version 99")
}

func TestUnmarshalCanonicalizesHandEdits(t *testing.T) {
	data := []byte(`{"version": 1, "definitions": [
		{"kind": "view", "database": "db", "name": "v", "query": "  SELECT   1 ;"}
	]}`)
	snap, err := Unmarshal(data, schema.CanonicalOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", snap.Definitions[0].Query)
}

func TestStoreLatest(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewFSStore(afero.NewMemMapFs(), "/m"), schema.CanonicalOptions{})

	snap, name, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Empty(t, name)

	defs := canonical(t)
	_, err = store.Save(ctx, "20240101000000_first.sql", New(defs[:1], time.Unix(0, 0)))
	require.NoError(t, err)
	saved, err := store.Save(ctx, "20240202000000_second.sql", New(defs, time.Unix(0, 0)))
	require.NoError(t, err)
	assert.Equal(t, "snapshots/20240202000000_second.json", saved)

	snap, name, err = store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, name)
	assert.Len(t, snap.Definitions, 2)
}
