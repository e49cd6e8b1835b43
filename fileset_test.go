package coffea

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetSpecUnmarshalBareList(t *testing.T) {
	var fs Fileset
	err := json.Unmarshal([]byte(`{"zjets": ["a.root", "b.root"]}`), &fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.root", "b.root"}, fs["zjets"].Files)
	assert.Empty(t, fs["zjets"].Treename)
}

func TestDatasetSpecUnmarshalObject(t *testing.T) {
	var fs Fileset
	err := json.Unmarshal([]byte(`{
		"zjets": {
			"treename": "events",
			"files": ["a.root"],
			"metadata": {"campaign": "2018"}
		}
	}`), &fs)
	require.NoError(t, err)
	assert.Equal(t, "events", fs["zjets"].Treename)
	assert.Equal(t, []string{"a.root"}, fs["zjets"].Files)
	assert.Equal(t, "2018", fs["zjets"].Metadata["campaign"])
}

func TestLoadFileset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fileset.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ttbar": ["a.root"]}`), 0644))

	fs, err := LoadFileset(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.root"}, fs["ttbar"].Files)

	_, err = LoadFileset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNormalizeFileset(t *testing.T) {
	fs := Fileset{
		"zjets": {Files: []string{"z1.root", "z2.root"}},
		"ttbar": {Treename: "nominal", Files: []string{"t1.root"}},
	}
	metas, err := normalizeFileset(fs, "events")
	require.NoError(t, err)
	require.Len(t, metas, 3)

	// Datasets are walked in sorted order.
	assert.Equal(t, "ttbar", metas[0].Dataset)
	assert.Equal(t, "nominal", metas[0].Treename)
	assert.Equal(t, "events", metas[1].Treename)
	assert.Equal(t, "z1.root", metas[1].Filename)
}

func TestNormalizeFilesetRequiresTreename(t *testing.T) {
	fs := Fileset{"zjets": {Files: []string{"a.root"}}}
	_, err := normalizeFileset(fs, "")
	assert.Error(t, err)
}

func TestNormalizeFilesetReservedMetadata(t *testing.T) {
	fs := Fileset{"zjets": {
		Files:    []string{"a.root"},
		Metadata: map[string]interface{}{"filename": "nope"},
	}}
	_, err := normalizeFileset(fs, "events")
	assert.Error(t, err)
}
