// Package similarity partitions ordered sequences of texts into contiguous
// groups of near-duplicate content using pairwise embedding similarity.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyInput is returned when there is nothing to cluster.
var ErrEmptyInput = errors.New("similarity: empty input")

// Embedder turns texts into embedding vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Span is a half-open [Start, End) index range into the clustered input.
type Span struct {
	Start int
	End   int
}

// Len returns the number of items covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Matrix is a pairwise cosine-similarity matrix over a sequence of items.
type Matrix [][]float64

// PairwiseSimilarity computes the full cosine-similarity matrix for the
// given vectors. Vectors are normalized once so each cell is a dot product.
func PairwiseSimilarity(vectors [][]float32) Matrix {
	n := len(vectors)
	normed := make([][]float64, n)
	for i, v := range vectors {
		normed[i] = normalize(v)
	}
	m := make(Matrix, n)
	for i := 0; i < n; i++ {
		m[i] = make([]float64, n)
		m[i][i] = 1
		for j := 0; j < i; j++ {
			sim := dot(normed[i], normed[j])
			m[i][j] = sim
			m[j][i] = sim
		}
	}
	return m
}

// Cluster partitions indices [0, n) into contiguous, non-overlapping,
// order-preserving spans. Starting at an anchor row i, it scans forward for
// the first index j whose similarity to i falls at or below the threshold;
// the cluster is [i, j) and the scan continues from j. A row similar to
// every remaining item extends its cluster to the end.
func Cluster(m Matrix, threshold float64) []Span {
	n := len(m)
	if n == 0 {
		return nil
	}
	var spans []Span
	i := 0
	for i < n {
		j := i + 1
		for j < n && m[i][j] > threshold {
			j++
		}
		spans = append(spans, Span{Start: i, End: j})
		i = j
	}
	return spans
}

// ClusterTexts embeds the texts and clusters them in one step.
func ClusterTexts(ctx context.Context, emb Embedder, texts []string, threshold float64) ([]Span, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if len(texts) == 1 {
		return []Span{{Start: 0, End: 1}}, nil
	}
	vectors, err := emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("similarity: embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("similarity: embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return Cluster(PairwiseSimilarity(vectors), threshold), nil
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero-length input.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		f := float64(x)
		out[i] = f
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
