package coffea

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItemLenAndString(t *testing.T) {
	wi := &WorkItem{Filename: "a.root", EntryStart: 100, EntryStop: 350}
	assert.Equal(t, int64(250), wi.Len())
	assert.Equal(t, "a.root (100-350)", wi.String())
}

func TestWorkItemResolvedMeta(t *testing.T) {
	wi := &WorkItem{
		Dataset:    "zjets",
		Filename:   "a.root",
		Treename:   "events",
		EntryStart: 100,
		EntryStop:  350,
		FileUUID:   "00000000-0000-0000-0000-000000000001",
		UserMeta:   map[string]interface{}{"campaign": "2018", "weight": int64(2)},
	}

	md := wi.ResolvedMeta()
	assert.Equal(t, "zjets", md["dataset"])
	assert.Equal(t, "a.root", md["filename"])
	assert.Equal(t, "events", md["treename"])
	assert.Equal(t, int64(100), md["entrystart"])
	assert.Equal(t, int64(350), md["entrystop"])
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", md["fileuuid"])
	assert.Equal(t, "2018", md["campaign"])
	assert.Equal(t, int64(2), md["weight"])

	// Each call builds a fresh map; mutating it must not leak back.
	md["campaign"] = "2017"
	assert.Equal(t, "2018", wi.UserMeta["campaign"])
	assert.Equal(t, "2018", wi.ResolvedMeta()["campaign"])
}

func TestWorkItemJSONRoundtrip(t *testing.T) {
	wi := &WorkItem{
		Dataset:    "zjets",
		Filename:   "a.root",
		Treename:   "events",
		EntryStart: 0,
		EntryStop:  100,
		FileUUID:   "u",
	}
	b, err := json.Marshal(wi)
	require.NoError(t, err)

	var back WorkItem
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *wi, back)
}
