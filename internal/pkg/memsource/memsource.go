// Package memsource provides an in-memory FileSource for tests and demos.
package memsource

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/mattetti/filebuffer"

	"github.com/gordonwatts/coffea"
)

type file struct {
	uuid     string
	entries  int64
	clusters []int64
	payload  []byte

	failuresLeft int
	failErr      error
}

// Source holds named files entirely in memory. Safe for concurrent use.
type Source struct {
	mu    sync.Mutex
	files map[string]*file
}

func New() *Source {
	return &Source{files: make(map[string]*file)}
}

// Add registers a file with the given entry count, optional cluster
// boundaries, and payload bytes. A fresh UUID is assigned.
func (s *Source) Add(filename string, entries int64, clusters []int64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filename] = &file{
		uuid:     uuid.NewString(),
		entries:  entries,
		clusters: clusters,
		payload:  payload,
	}
}

// FailNext makes the next n opens of filename fail with err before opens
// succeed again.
func (s *Source) FailNext(filename string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[filename]; ok {
		f.failuresLeft = n
		f.failErr = err
	}
}

func (s *Source) Open(ctx context.Context, filename, treename string) (coffea.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[filename]
	if !ok {
		return nil, coffea.IOErrorf("no such file %s", filename)
	}
	if f.failuresLeft > 0 {
		f.failuresLeft--
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, coffea.IOErrorf("injected open failure for %s", filename)
	}
	return &handle{
		uuid:     f.uuid,
		entries:  f.entries,
		clusters: f.clusters,
		buf:      filebuffer.New(f.payload),
	}, nil
}

type handle struct {
	uuid     string
	entries  int64
	clusters []int64
	buf      *filebuffer.Buffer
	closed   bool
}

func (h *handle) NumEntries() int64 { return h.entries }
func (h *handle) UUID() string      { return h.uuid }

func (h *handle) Clusters() []int64 {
	if h.clusters == nil {
		return nil
	}
	out := make([]int64, len(h.clusters))
	copy(out, h.clusters)
	return out
}

// Reader exposes the payload bytes of the file.
func (h *handle) Reader() io.ReadSeeker { return h.buf }

func (h *handle) Close() error {
	if h.closed {
		return fmt.Errorf("file already closed")
	}
	h.closed = true
	return h.buf.Close()
}
