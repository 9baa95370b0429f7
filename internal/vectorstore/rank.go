package vectorstore

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// candidate is a scored document awaiting selection. seq is the document's
// insertion sequence and breaks score ties in favour of older documents.
type candidate struct {
	score float32
	seq   int64
	doc   *Document
}

// better reports whether a ranks ahead of b.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.seq < b.seq
}

// minHeap keeps the worst retained candidate at the root.
type minHeap []candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ranker selects the k best candidates from a stream.
type ranker struct {
	k int
	h minHeap
}

func newRanker(k int) *ranker {
	return &ranker{k: k, h: make(minHeap, 0, min(k, 1024))}
}

func (r *ranker) offer(c candidate) {
	if math.IsNaN(float64(c.score)) {
		return
	}
	if len(r.h) < r.k {
		heap.Push(&r.h, c)
		return
	}
	if better(c, r.h[0]) {
		r.h[0] = c
		heap.Fix(&r.h, 0)
	}
}

// results drains the ranker best first.
func (r *ranker) results(includeVectors bool) []Result {
	out := make([]candidate, len(r.h))
	copy(out, r.h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })

	results := make([]Result, len(out))
	for i, c := range out {
		results[i] = Result{
			ID:       c.doc.ID,
			Score:    c.score,
			Content:  c.doc.Content,
			Metadata: c.doc.Metadata.Clone(),
		}
		if includeVectors {
			results[i].Vector = cloneVector(c.doc.Vector)
		}
	}
	return results
}

// EncodeVector packs v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a buffer written by EncodeVector.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vectorstore: decode vector: length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
