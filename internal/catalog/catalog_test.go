package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	in := []Channel{
		{ID: "a", Name: "A", Slug: "a", Number: 5, Logo: "http://img/a.png", Category: "News", Region: "uk"},
		{ID: "b", Name: "B", Slug: "b", Number: 6, Region: "uk"},
	}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSave_atomic_noPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	require.NoError(t, Save(path, []Channel{{ID: "x"}}))
	require.NoError(t, Save(path, []Channel{{ID: "y"}, {ID: "z"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "channels.json", entries[0].Name())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, IDs(out))
}

func TestLoad_errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not valid json"), 0600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestCache_putGetReset(t *testing.T) {
	c := NewCache()
	in := []Channel{{ID: "a", Number: 1}}
	c.Put("uk", in)
	c.Put("ca", []Channel{{ID: "b", Number: 2}})
	c.Put("uk", []Channel{{ID: "c", Number: 3}})

	in[0].Number = 99 // caller mutation must not leak into the cache
	got, ok := c.Get("uk")
	require.True(t, ok)
	assert.Equal(t, []string{"c"}, IDs(got))
	assert.Equal(t, []string{"uk", "ca"}, c.Regions())
	assert.Len(t, c.Snapshot(), 2)

	c.Reset()
	_, ok = c.Get("uk")
	assert.False(t, ok)
	assert.Empty(t, c.Regions())
}
