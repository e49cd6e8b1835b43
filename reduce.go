package coffea

import (
	"errors"
)

// DefaultTreeReduction is the default branching factor for tree reductions.
const DefaultTreeReduction = 20

// ErrEmptyReduction is returned when a reduction is asked to merge zero
// values. Callers wanting empty-input tolerance must supply an identity
// element as their seed.
var ErrEmptyReduction = errors.New("empty sequence provided to reduction")

// Accumulatable is the contract result types must satisfy: an associative
// merge operation, so repeated pairwise or grouped merges of the same
// multiset of values produce an equivalent result in any association.
type Accumulatable[A any] interface {
	Merge(other A) A
}

// Accumulate folds items into acc left to right and returns the result.
func Accumulate[A Accumulatable[A]](items []A, acc A) A {
	for _, v := range items {
		acc = acc.Merge(v)
	}
	return acc
}

// TreeReduce repeatedly groups the values into batches of at most branch,
// merges each batch, and replaces the sequence with the batch results until
// one value remains. Reducing zero values is a hard error.
func TreeReduce[A Accumulatable[A]](items []A, branch int) (A, error) {
	var zero A
	if len(items) == 0 {
		return zero, ErrEmptyReduction
	}
	if branch < 2 {
		branch = DefaultTreeReduction
	}
	for len(items) > 1 {
		batches := splitBatches(items, branch)
		next := make([]A, 0, len(batches))
		for _, batch := range batches {
			next = append(next, Accumulate(batch[1:], batch[0]))
		}
		items = next
	}
	return items[0], nil
}

// splitBatches cuts a slice into consecutive groups of at most size elements.
func splitBatches[V any](items []V, size int) [][]V {
	if size < 1 {
		size = 1
	}
	batches := make([][]V, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		stop := start + size
		if stop > len(items) {
			stop = len(items)
		}
		batches = append(batches, items[start:stop])
	}
	return batches
}
