package coffea

import (
	"errors"
	"fmt"
	"math"

	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// ChunkIterator emits WorkItems covering [0, numentries) of one file exactly
// once, in increasing order, with no gaps or overlaps. The consumer drives
// iteration and, in dynamic mode, may inject a width hint before each pull.
type ChunkIterator struct {
	fm      *FileMeta
	user    map[string]interface{}
	entries int64

	// even-split state
	width   int64
	start   int64
	pending int64
	dynamic bool

	// cluster-aligned state; nil in even-split mode
	cuts []int64
	idx  int
}

// Chunks plans the file into work units. target is the desired entries per
// unit. alignClusters cuts only at the file's natural cluster boundaries and
// cannot be combined with dynamic resizing.
func (fm *FileMeta) Chunks(target int64, alignClusters, dynamic bool) (*ChunkIterator, error) {
	if alignClusters && dynamic {
		return nil, errors.New("align clusters cannot be used with a dynamic chunksize")
	}
	if target <= 0 {
		return nil, fmt.Errorf("invalid target chunksize %d", target)
	}
	if !fm.Populated(alignClusters) {
		return nil, fmt.Errorf("metadata for file %s is not populated", fm.Filename)
	}

	it := &ChunkIterator{
		fm:      fm,
		user:    fm.userMeta(),
		entries: fm.NumEntries(),
		dynamic: dynamic,
	}
	if alignClusters {
		clusters := fm.clusterList()
		if err := validateClusters(clusters, it.entries); err != nil {
			return nil, fmt.Errorf("file %s: %w", fm.Filename, err)
		}
		cuts := []int64{0}
		for _, c := range clusters {
			if c >= cuts[len(cuts)-1]+target {
				cuts = append(cuts, c)
			}
		}
		if len(clusters) > 0 {
			if last := clusters[len(clusters)-1]; cuts[len(cuts)-1] != last {
				cuts = append(cuts, last)
			}
		}
		it.cuts = cuts
		return it, nil
	}

	n := int64(math.Round(float64(it.entries) / float64(target)))
	if n < 1 {
		n = 1
	}
	it.width = (it.entries + n - 1) / n
	log.Debugf("Planned %s chunks of %s entries for %s",
		humanize.Comma(n), humanize.Comma(it.width), fm.Filename)
	return it, nil
}

// validateClusters checks that cluster boundaries increase monotonically and
// end exactly at the entry count, so an aligned plan cannot under-cover the
// file.
func validateClusters(clusters []int64, entries int64) error {
	if len(clusters) == 0 {
		if entries == 0 {
			return nil
		}
		return errors.New("cluster list is empty")
	}
	prev := int64(0)
	for _, c := range clusters {
		if c <= prev {
			return fmt.Errorf("cluster boundaries must increase, got %d after %d", c, prev)
		}
		prev = c
	}
	if prev != entries {
		return fmt.Errorf("last cluster boundary %d does not match %d entries", prev, entries)
	}
	return nil
}

// Resize requests a new width for the next unit only. Hints are honored in
// dynamic even-split mode and ignored otherwise.
func (it *ChunkIterator) Resize(n int64) {
	if it.dynamic && n > 0 {
		it.pending = n
	}
}

// Next produces the next work unit, or false when the file is fully covered.
func (it *ChunkIterator) Next() (*WorkItem, bool) {
	if it.cuts != nil {
		if it.idx+1 >= len(it.cuts) {
			return nil, false
		}
		start, stop := it.cuts[it.idx], it.cuts[it.idx+1]
		it.idx++
		return it.item(start, stop), true
	}

	if it.start >= it.entries {
		return nil, false
	}
	if it.pending > 0 {
		it.width = it.pending
		it.pending = 0
	}
	stop := it.start + it.width
	if stop > it.entries {
		stop = it.entries
	}
	wi := it.item(it.start, stop)
	it.start = stop
	return wi, true
}

func (it *ChunkIterator) item(start, stop int64) *WorkItem {
	return &WorkItem{
		Dataset:    it.fm.Dataset,
		Filename:   it.fm.Filename,
		Treename:   it.fm.Treename,
		EntryStart: start,
		EntryStop:  stop,
		FileUUID:   it.fm.fileUUID(),
		UserMeta:   it.user,
	}
}
