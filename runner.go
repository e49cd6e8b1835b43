package coffea

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// Processor is the user analysis: Process handles one chunk and returns a
// partial result, Postprocess runs once on the fully merged result. Process
// must be safe for concurrent calls.
type Processor[A Accumulatable[A]] interface {
	Process(ctx context.Context, item *WorkItem) (A, error)
	Postprocess(acc A) error
}

// ProcessorFunc adapts a plain function into a Processor with a no-op
// Postprocess.
type ProcessorFunc[A Accumulatable[A]] func(ctx context.Context, item *WorkItem) (A, error)

func (f ProcessorFunc[A]) Process(ctx context.Context, item *WorkItem) (A, error) {
	return f(ctx, item)
}

func (f ProcessorFunc[A]) Postprocess(A) error { return nil }

// Report summarizes one run.
type Report struct {
	// Chunks is the number of chunks merged into the result.
	Chunks int64
	// SkippedChunks counts chunks dropped by the skip policy.
	SkippedChunks int64
	// Entries is the total entry count of the merged chunks.
	Entries int64
	// Duration is the wall time of the whole run.
	Duration time.Duration
}

// Option allows configuration of a Runner.
type Option func(*config)

// WithChunksize sets the target number of entries per chunk.
func WithChunksize(n int64) Option {
	return func(c *config) { c.chunksize = n }
}

// WithMaxChunks limits each dataset to at most n chunks; useful for quick
// partial passes over large filesets.
func WithMaxChunks(n int) Option {
	return func(c *config) { c.maxChunks = n }
}

// WithRetries sets how many times a failed chunk or metadata fetch is
// re-attempted before the failure is final.
func WithRetries(n int) Option {
	return func(c *config) { c.retries = n }
}

// WithSkipBadFiles drops files and chunks whose I/O fails instead of
// aborting the run.
func WithSkipBadFiles(skip bool) Option {
	return func(c *config) { c.skipBadFiles = skip }
}

// WithAlignClusters cuts chunks only at the files' natural cluster
// boundaries.
func WithAlignClusters(align bool) Option {
	return func(c *config) { c.alignClusters = align }
}

// WithDynamicChunksize adapts the chunk width at runtime so each chunk takes
// roughly target wall time to process.
func WithDynamicChunksize(target time.Duration) Option {
	return func(c *config) {
		c.dynamicChunksize = true
		c.dynamicTarget = target
	}
}

// WithCompression sets the lz4 level used for results in flight.
func WithCompression(level int) Option {
	return func(c *config) { c.compression = &level }
}

// WithoutCompression disables in-flight result compression.
func WithoutCompression() Option {
	return func(c *config) { c.compression = nil }
}

// WithTailTimeout stops waiting for stragglers when no chunk finishes for
// the given duration; the run returns the partial result.
func WithTailTimeout(d time.Duration) Option {
	return func(c *config) { c.tailTimeout = d }
}

// WithMaxConcurrency bounds the parallelism of preprocessing and execution.
func WithMaxConcurrency(n int) Option {
	return func(c *config) { c.maxConcurrency = n }
}

// WithTreeReduction sets the branching factor for remote reduction trees.
func WithTreeReduction(n int) Option {
	return func(c *config) { c.treeReduction = n }
}

// WithStatus enables or disables progress bars.
func WithStatus(status bool) Option {
	return func(c *config) { c.status = status }
}

// WithTreename sets the tree name used for datasets that do not name one.
func WithTreename(name string) Option {
	return func(c *config) { c.treename = name }
}

// WithMetadataCache injects the cache used for populated file metadata.
func WithMetadataCache(cache MetadataCache) Option {
	return func(c *config) { c.cache = cache }
}

// WithPreExecutor injects the executor used for the metadata fetch pass.
func WithPreExecutor(exec Executor[*FileMeta, *FileMetaSet]) Option {
	return func(c *config) { c.preExec = exec }
}

// Runner plans a fileset into chunks, dispatches them through an executor,
// and reduces the partial results into one accumulator.
type Runner[A Accumulatable[A]] struct {
	source FileSource
	exec   Executor[*WorkItem, A]
	conf   *config
}

// NewRunner builds a Runner over the given file source and executor.
// Incompatible option combinations are construction-time errors.
func NewRunner[A Accumulatable[A]](source FileSource, exec Executor[*WorkItem, A], options ...Option) (*Runner[A], error) {
	if source == nil {
		return nil, errors.New("a file source is required")
	}
	if exec == nil {
		return nil, errors.New("an executor is required")
	}

	c := newConfig()
	for _, f := range options {
		f(c)
	}

	if c.chunksize <= 0 {
		return nil, fmt.Errorf("invalid chunksize %d", c.chunksize)
	}
	if c.alignClusters && c.dynamicChunksize {
		return nil, errors.New("align clusters cannot be used with a dynamic chunksize")
	}
	if c.maxChunks > 0 && c.dynamicChunksize {
		return nil, errors.New("max chunks cannot be used with a dynamic chunksize")
	}
	if c.dynamicChunksize {
		if ord, ok := exec.(inOrder); !ok || !ord.InOrder() {
			return nil, errors.New("a dynamic chunksize requires an executor that processes chunks in submission order")
		}
	}

	log.Debugf("Loaded config: %#v", c)
	return &Runner[A]{source: source, exec: exec, conf: c}, nil
}

// Run processes the fileset and returns the merged, postprocessed result.
func (r *Runner[A]) Run(ctx context.Context, fs Fileset, proc Processor[A], acc A) (A, error) {
	out, _, err := r.RunWithReport(ctx, fs, proc, acc)
	return out, err
}

// RunWithReport is Run plus counters describing what was processed.
func (r *Runner[A]) RunWithReport(ctx context.Context, fs Fileset, proc Processor[A], acc A) (A, *Report, error) {
	start := time.Now()
	report := &Report{}

	metas, err := normalizeFileset(fs, r.conf.treename)
	if err != nil {
		return acc, report, err
	}

	var items Sequence[*WorkItem]
	expected := 0
	switch {
	case r.conf.maxChunks > 0:
		chunks, err := r.planLimited(ctx, metas)
		if err != nil {
			return acc, report, err
		}
		items = SequenceOf(chunks...)
		expected = len(chunks)
	case r.conf.dynamicChunksize:
		usable, err := r.preprocess(ctx, metas)
		if err != nil {
			return acc, report, err
		}
		// Widths adapt at runtime, so estimate the unit total from the
		// entry total at the target width.
		var entries int64
		for _, fm := range usable {
			entries += fm.NumEntries()
		}
		expected = int((entries + r.conf.chunksize - 1) / r.conf.chunksize)
		items = &chunkSequence{
			metas:   usable,
			target:  r.conf.chunksize,
			dynamic: true,
		}
	default:
		usable, err := r.preprocess(ctx, metas)
		if err != nil {
			return acc, report, err
		}
		chunks, err := planChunks(usable, r.conf.chunksize, r.conf.alignClusters, 0)
		if err != nil {
			return acc, report, err
		}
		items = SequenceOf(chunks...)
		expected = len(chunks)
	}

	unit := wrapRetries(proc.Process, r.conf.retries, r.conf.skipBadFiles,
		func(wi *WorkItem) string { return wi.String() })
	counted := func(ctx context.Context, wi *WorkItem) (Result[A], error) {
		res, err := unit(ctx, wi)
		if err == nil {
			if res.Skipped {
				atomic.AddInt64(&report.SkippedChunks, 1)
			} else {
				atomic.AddInt64(&report.Chunks, 1)
				atomic.AddInt64(&report.Entries, wi.Len())
			}
		}
		return res, err
	}

	var target time.Duration
	if r.conf.dynamicChunksize {
		target = r.conf.dynamicTarget
	}
	out, err := r.exec.Execute(ctx, items, counted, acc, Options[A]{
		Status:        r.conf.status,
		Unit:          "chunk",
		Desc:          "Processing",
		Compression:   r.conf.compression,
		TailTimeout:   r.conf.tailTimeout,
		Workers:       r.conf.maxConcurrency,
		TreeReduction: r.conf.treeReduction,
		DynamicTarget: target,
		ExpectedItems: expected,
	})
	report.Duration = time.Since(start)
	if err != nil {
		return out, report, err
	}

	if err := proc.Postprocess(out); err != nil {
		return out, report, err
	}

	log.Infof("Processed %s entries in %d chunks (%d skipped) in %s",
		humanize.Comma(report.Entries), report.Chunks, report.SkippedChunks, report.Duration)
	return out, report, nil
}

// fetchFileMeta builds the metadata fetch unit: it opens the file, records
// the chunkable metadata on the descriptor, and returns it as a singleton
// set. Retry and skip policy match chunk processing.
func (r *Runner[A]) fetchFileMeta() UnitFunc[*FileMeta, *FileMetaSet] {
	fetch := func(ctx context.Context, fm *FileMeta) (*FileMetaSet, error) {
		h, err := r.source.Open(ctx, fm.Filename, fm.Treename)
		if err != nil {
			return nil, err
		}
		defer h.Close()

		md := make(map[string]interface{}, len(fm.Metadata)+3)
		for k, v := range fm.Metadata {
			md[k] = v
		}
		md["numentries"] = h.NumEntries()
		md["uuid"] = h.UUID()
		if clusters := h.Clusters(); clusters != nil {
			md["clusters"] = clusters
		}
		fm.Metadata = md
		return NewFileMetaSet(fm), nil
	}
	return wrapRetries(fetch, r.conf.retries, r.conf.skipBadFiles,
		func(fm *FileMeta) string { return fm.Filename })
}

// preprocess populates metadata for every file, from the cache where
// possible and by fetching in parallel otherwise, and returns the files fit
// for chunking. An unpopulatable file is dropped when skipping is enabled
// and a hard error otherwise.
func (r *Runner[A]) preprocess(ctx context.Context, metas []*FileMeta) ([]*FileMeta, error) {
	var need []*FileMeta
	for _, fm := range metas {
		fm.MaybePopulate(r.conf.cache)
		if !fm.Populated(r.conf.alignClusters) {
			need = append(need, fm)
		}
	}

	if len(need) > 0 {
		fetched, err := r.conf.preExec.Execute(ctx, SequenceOf(need...), r.fetchFileMeta(),
			NewFileMetaSet(), Options[*FileMetaSet]{
				Status:        r.conf.status,
				Unit:          "file",
				Desc:          "Preprocessing",
				Workers:       r.conf.maxConcurrency,
				ExpectedItems: len(need),
			})
		if err != nil {
			return nil, err
		}
		if r.conf.cache != nil {
			for _, fm := range fetched.Items() {
				r.conf.cache.Set(fm.Filename, fm.Treename, fm.Metadata)
			}
		}
	}

	usable := make([]*FileMeta, 0, len(metas))
	for _, fm := range metas {
		if fm.Populated(r.conf.alignClusters) {
			usable = append(usable, fm)
			continue
		}
		if !r.conf.skipBadFiles {
			return nil, fmt.Errorf("metadata for file %s could not be accessed", fm.Filename)
		}
	}
	return usable, nil
}

// planLimited fetches metadata file by file, stopping per dataset as soon as
// the chunk cap is reached, so a capped run never touches files it will not
// process.
func (r *Runner[A]) planLimited(ctx context.Context, metas []*FileMeta) ([]*WorkItem, error) {
	fetch := r.fetchFileMeta()
	perDataset := make(map[string]int)
	var chunks []*WorkItem
	for _, fm := range metas {
		if perDataset[fm.Dataset] >= r.conf.maxChunks {
			continue
		}
		fm.MaybePopulate(r.conf.cache)
		if !fm.Populated(r.conf.alignClusters) {
			res, err := fetch(ctx, fm)
			if err != nil {
				return nil, err
			}
			if res.Skipped {
				continue
			}
			if r.conf.cache != nil {
				r.conf.cache.Set(fm.Filename, fm.Treename, fm.Metadata)
			}
		}
		remaining := r.conf.maxChunks - perDataset[fm.Dataset]
		planned, err := planChunks([]*FileMeta{fm}, r.conf.chunksize, r.conf.alignClusters, remaining)
		if err != nil {
			return nil, err
		}
		perDataset[fm.Dataset] += len(planned)
		chunks = append(chunks, planned...)
	}
	return chunks, nil
}

// planChunks materializes the chunks of the given files in order. A positive
// limit caps how many are produced.
func planChunks(metas []*FileMeta, target int64, align bool, limit int) ([]*WorkItem, error) {
	var chunks []*WorkItem
	for _, fm := range metas {
		it, err := fm.Chunks(target, align, false)
		if err != nil {
			return nil, err
		}
		for {
			if limit > 0 && len(chunks) >= limit {
				return chunks, nil
			}
			wi, ok := it.Next()
			if !ok {
				break
			}
			chunks = append(chunks, wi)
		}
	}
	return chunks, nil
}

// chunkSequence lazily walks the chunks of a list of files, carrying the
// most recent width hint across file boundaries so adaptation survives into
// the next file.
type chunkSequence struct {
	metas   []*FileMeta
	target  int64
	dynamic bool

	cur     *ChunkIterator
	pending int64
}

func (s *chunkSequence) Next() (*WorkItem, bool) {
	for {
		if s.cur == nil {
			if len(s.metas) == 0 {
				return nil, false
			}
			fm := s.metas[0]
			s.metas = s.metas[1:]
			it, err := fm.Chunks(s.target, false, s.dynamic)
			if err != nil {
				// Files are validated before planning starts.
				log.Errorf("Cannot chunk file %s: %s", fm.Filename, err)
				continue
			}
			if s.pending > 0 {
				it.Resize(s.pending)
			}
			s.cur = it
		}
		wi, ok := s.cur.Next()
		if !ok {
			s.cur = nil
			continue
		}
		return wi, true
	}
}

func (s *chunkSequence) Resize(n int64) {
	if n <= 0 {
		return
	}
	s.pending = n
	if s.cur != nil {
		s.cur.Resize(n)
	}
}
