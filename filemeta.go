package coffea

import (
	"fmt"
)

// reservedMetaKeys are metadata keys owned by the framework. User-supplied
// metadata must not use them.
var reservedMetaKeys = map[string]struct{}{
	"dataset":    {},
	"filename":   {},
	"treename":   {},
	"metadata":   {},
	"entrystart": {},
	"entrystop":  {},
	"fileuuid":   {},
	"numentries": {},
	"uuid":       {},
	"clusters":   {},
}

// FileMeta describes one file of a dataset together with the metadata needed
// to chunk it. Identity is (Filename, Treename); Dataset takes no part in
// cache lookups or equality.
type FileMeta struct {
	Dataset  string
	Filename string
	Treename string
	Metadata map[string]interface{}
}

// NewFileMeta builds a descriptor carrying optional user metadata. Using a
// reserved metadata key is a construction-time error.
func NewFileMeta(dataset, filename, treename string, userMeta map[string]interface{}) (*FileMeta, error) {
	var md map[string]interface{}
	if userMeta != nil {
		md = make(map[string]interface{}, len(userMeta))
		for k, v := range userMeta {
			if _, reserved := reservedMetaKeys[k]; reserved {
				return nil, fmt.Errorf("reserved word %q in metadata of dataset %q, please rename this entry", k, dataset)
			}
			md[k] = v
		}
	}
	return &FileMeta{
		Dataset:  dataset,
		Filename: filename,
		Treename: treename,
		Metadata: md,
	}, nil
}

// fileKey is the cache identity of a descriptor.
type fileKey struct {
	filename string
	treename string
}

func (fm *FileMeta) key() fileKey {
	return fileKey{filename: fm.Filename, treename: fm.Treename}
}

// SameFile reports whether two descriptors address the same file and tree,
// ignoring the dataset.
func (fm *FileMeta) SameFile(other *FileMeta) bool {
	return fm.Filename == other.Filename && fm.Treename == other.Treename
}

// MaybePopulate fills in metadata from the cache if an entry exists.
func (fm *FileMeta) MaybePopulate(cache MetadataCache) {
	if cache == nil {
		return
	}
	if md, ok := cache.Get(fm.Filename, fm.Treename); ok {
		fm.Metadata = md
	}
}

// Populated returns true if metadata is populated.
//
// By default, only the bare minimum (numentries, uuid) is required. If
// clusters is true, cluster boundaries must be populated as well.
func (fm *FileMeta) Populated(clusters bool) bool {
	if fm.Metadata == nil {
		return false
	}
	if _, ok := fm.Metadata["numentries"].(int64); !ok {
		return false
	}
	if _, ok := fm.Metadata["uuid"].(string); !ok {
		return false
	}
	if clusters {
		if _, ok := fm.Metadata["clusters"].([]int64); !ok {
			return false
		}
	}
	return true
}

// NumEntries returns the populated entry count, or 0 when unpopulated.
func (fm *FileMeta) NumEntries() int64 {
	n, _ := fm.Metadata["numentries"].(int64)
	return n
}

func (fm *FileMeta) fileUUID() string {
	u, _ := fm.Metadata["uuid"].(string)
	return u
}

func (fm *FileMeta) clusterList() []int64 {
	c, _ := fm.Metadata["clusters"].([]int64)
	return c
}

// userMeta copies the non-reserved metadata entries.
func (fm *FileMeta) userMeta() map[string]interface{} {
	var md map[string]interface{}
	for k, v := range fm.Metadata {
		if _, reserved := reservedMetaKeys[k]; reserved {
			continue
		}
		if md == nil {
			md = make(map[string]interface{})
		}
		md[k] = v
	}
	return md
}

// FileMetaSet is a set accumulator of file descriptors keyed by identity.
// It is the result type of the metadata fetch pass.
type FileMetaSet struct {
	items map[fileKey]*FileMeta
}

// NewFileMetaSet builds a set holding the given descriptors.
func NewFileMetaSet(metas ...*FileMeta) *FileMetaSet {
	s := &FileMetaSet{items: make(map[fileKey]*FileMeta, len(metas))}
	for _, fm := range metas {
		s.items[fm.key()] = fm
	}
	return s
}

// Merge folds other into s and returns s. Merging is associative: the same
// multiset of descriptors produces the same set regardless of grouping.
func (s *FileMetaSet) Merge(other *FileMetaSet) *FileMetaSet {
	if other == nil {
		return s
	}
	for k, fm := range other.items {
		s.items[k] = fm
	}
	return s
}

// Items returns the descriptors in the set, in no particular order.
func (s *FileMetaSet) Items() []*FileMeta {
	out := make([]*FileMeta, 0, len(s.items))
	for _, fm := range s.items {
		out = append(out, fm)
	}
	return out
}

// Len returns the number of descriptors in the set.
func (s *FileMetaSet) Len() int {
	return len(s.items)
}
