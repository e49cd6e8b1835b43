package coffea

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Fileset maps a dataset name to the files belonging to it.
type Fileset map[string]DatasetSpec

// DatasetSpec lists the files of one dataset. In JSON form it may be either
// a bare list of file locators or an object carrying a tree name and user
// metadata alongside the file list.
type DatasetSpec struct {
	Treename string                 `json:"treename,omitempty"`
	Files    []string               `json:"files"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both the bare-list and the object form.
func (d *DatasetSpec) UnmarshalJSON(b []byte) error {
	var files []string
	if err := json.Unmarshal(b, &files); err == nil {
		*d = DatasetSpec{Files: files}
		return nil
	}
	type plain DatasetSpec
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = DatasetSpec(p)
	return nil
}

// LoadFileset reads a serialized fileset from a JSON file.
func LoadFileset(path string) (Fileset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fs Fileset
	if err := json.NewDecoder(f).Decode(&fs); err != nil {
		return nil, fmt.Errorf("parsing fileset %s: %w", path, err)
	}
	return fs, nil
}

// normalizeFileset flattens a fileset into per-file descriptors, validating
// that no reserved metadata keys are used. Datasets are walked in sorted
// order so planning is deterministic.
func normalizeFileset(fs Fileset, treename string) ([]*FileMeta, error) {
	datasets := make([]string, 0, len(fs))
	for dataset := range fs {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)

	var metas []*FileMeta
	for _, dataset := range datasets {
		spec := fs[dataset]
		name := spec.Treename
		if name == "" {
			name = treename
		}
		if name == "" {
			return nil, fmt.Errorf("treename must be specified if the fileset does not name one (dataset %q)", dataset)
		}
		for _, filename := range spec.Files {
			fm, err := NewFileMeta(dataset, filename, name, spec.Metadata)
			if err != nil {
				return nil, err
			}
			metas = append(metas, fm)
		}
	}
	return metas, nil
}
