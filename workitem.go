package coffea

import (
	"fmt"
)

// WorkItem defines a serialized description of a single unit of work: a
// contiguous slice of entries in one file. WorkItems are immutable value
// data, safe to send to any executor backend.
type WorkItem struct {
	Dataset    string                 `json:"dataset"`
	Filename   string                 `json:"filename"`
	Treename   string                 `json:"treename"`
	EntryStart int64                  `json:"entrystart"`
	EntryStop  int64                  `json:"entrystop"`
	FileUUID   string                 `json:"fileuuid"`
	UserMeta   map[string]interface{} `json:"usermeta,omitempty"`
}

// Len returns the number of entries covered by the item.
func (w *WorkItem) Len() int64 {
	return w.EntryStop - w.EntryStart
}

func (w *WorkItem) String() string {
	return fmt.Sprintf("%s (%d-%d)", w.Filename, w.EntryStart, w.EntryStop)
}

// ResolvedMeta builds the metadata map handed to a unit-of-work function:
// the reserved framework entries plus a copy of the user metadata.
func (w *WorkItem) ResolvedMeta() map[string]interface{} {
	md := map[string]interface{}{
		"dataset":    w.Dataset,
		"filename":   w.Filename,
		"treename":   w.Treename,
		"entrystart": w.EntryStart,
		"entrystop":  w.EntryStop,
		"fileuuid":   w.FileUUID,
	}
	for k, v := range w.UserMeta {
		md[k] = v
	}
	return md
}
