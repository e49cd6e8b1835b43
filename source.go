package coffea

import "context"

// FileSource opens data files read-only and reports the metadata needed to
// chunk them. The byte-level readers behind it are external collaborators;
// this engine only consumes the chunkable metadata.
type FileSource interface {
	Open(ctx context.Context, filename, treename string) (FileHandle, error)
}

// FileHandle is one opened file. Clusters may return nil when the format has
// no natural split points.
type FileHandle interface {
	NumEntries() int64
	UUID() string
	Clusters() []int64
	Close() error
}
