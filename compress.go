package coffea

import (
	"bytes"
	"context"
	"encoding/gob"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Codec turns values into bytes and back. The default codec uses gob;
// callers with richer result types may inject their own.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(b []byte) (V, error)
}

// GobCodec is the default Codec.
type GobCodec[V any] struct{}

func (GobCodec[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v)
	return v, err
}

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3,
	lz4.Level4, lz4.Level5, lz4.Level6,
	lz4.Level7, lz4.Level8, lz4.Level9,
}

func compressBytes(raw []byte, level int) ([]byte, error) {
	if level < 0 {
		level = 0
	}
	if level >= len(lz4Levels) {
		level = len(lz4Levels) - 1
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBytes(in []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(in)))
}

// encodeOutcome serializes a unit outcome, compressing it when clevel is
// non-nil.
func encodeOutcome[A any](codec Codec[Result[A]], clevel *int, res Result[A]) ([]byte, error) {
	b, err := codec.Encode(res)
	if err != nil {
		return nil, err
	}
	if clevel == nil {
		return b, nil
	}
	return compressBytes(b, *clevel)
}

// decodeOutcome is the symmetric step applied where results are consumed.
func decodeOutcome[A any](codec Codec[Result[A]], clevel *int, payload []byte) (Result[A], error) {
	if clevel != nil {
		raw, err := decompressBytes(payload)
		if err != nil {
			return Result[A]{}, err
		}
		payload = raw
	}
	return codec.Decode(payload)
}

// compressionWrapper wraps a unit function so its outcome is serialized and
// compressed before leaving the worker.
func compressionWrapper[T, A any](clevel int, codec Codec[Result[A]], fn UnitFunc[T, A]) func(context.Context, T) ([]byte, error) {
	return func(ctx context.Context, item T) ([]byte, error) {
		res, err := fn(ctx, item)
		if err != nil {
			return nil, err
		}
		return encodeOutcome(codec, &clevel, res)
	}
}

// reduceOutcomes merges serialized outcomes: all payloads but the last are
// decoded and folded into the last one, which serves as the running
// accumulator, and the merged outcome is re-encoded. This lets a reduction
// itself run as another unit of work without materializing every input
// decompressed at once.
func reduceOutcomes[A Accumulatable[A]](codec Codec[Result[A]], clevel *int, payloads [][]byte) ([]byte, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyReduction
	}
	res, err := decodeOutcome(codec, clevel, payloads[len(payloads)-1])
	if err != nil {
		return nil, err
	}
	acc := res.Value
	have := !res.Skipped
	for _, p := range payloads[:len(payloads)-1] {
		r, err := decodeOutcome(codec, clevel, p)
		if err != nil {
			return nil, err
		}
		if r.Skipped {
			continue
		}
		if !have {
			acc = r.Value
			have = true
			continue
		}
		acc = acc.Merge(r.Value)
	}
	out := Result[A]{Value: acc, Skipped: !have}
	return encodeOutcome(codec, clevel, out)
}
