// Package search implements the k-nearest-neighbour lookup consumed by
// vector search clauses.
//
// VectorIndex is a brute-force index: every Search scans the nodes carrying
// the requested label through a storage.Reader and ranks them by similarity
// using the vek32 SIMD kernels.
package search

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/viterin/vek/vek32"

	"github.com/orneryd/nexus/pkg/storage"
	"github.com/orneryd/nexus/pkg/value"
)

// Errors returned by Search.
var (
	ErrInvalidVector = errors.New("invalid query vector")
	ErrInvalidK      = errors.New("k must be positive")
)

// Metric selects the similarity function.
type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
	Dot       Metric = "dot"
)

// ParseMetric maps a configured metric name onto a Metric. Names are
// case-insensitive and an empty name selects Cosine.
func ParseMetric(name string) (Metric, error) {
	switch m := Metric(strings.ToLower(name)); m {
	case "":
		return Cosine, nil
	case Cosine, Euclidean, Dot:
		return m, nil
	}
	return "", fmt.Errorf("unknown vector metric %q", name)
}

// Hit is one ranked search result. Higher scores are closer.
type Hit struct {
	NodeID storage.NodeID
	Score  float64
}

// Index is the lookup interface used by the query executor.
type Index interface {
	Search(label string, vector []float32, k int, property string) ([]Hit, error)
}

// VectorIndex searches node properties holding numeric lists.
type VectorIndex struct {
	reader storage.Reader
	metric Metric
}

// NewVectorIndex returns a cosine index over reader.
func NewVectorIndex(reader storage.Reader) *VectorIndex {
	return &VectorIndex{reader: reader, metric: Cosine}
}

// WithMetric returns a copy of the index using m.
func (v *VectorIndex) WithMetric(m Metric) *VectorIndex {
	c := *v
	c.metric = m
	return &c
}

// Search returns the k nodes labelled label whose property is most similar
// to vector. Nodes without the property, with non-numeric elements or with
// a different dimension are skipped.
func (v *VectorIndex) Search(label string, vector []float32, k int, property string) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, ErrInvalidVector
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	var hits []Hit
	err := v.reader.ScanByLabel(label, func(n *storage.Node) bool {
		candidate, ok := Vector(n.Properties[property])
		if !ok || len(candidate) != len(vector) {
			return true
		}
		hits = append(hits, Hit{NodeID: n.ID, Score: v.score(vector, candidate)})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("vector search on :%s(%s): %w", label, property, err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (v *VectorIndex) score(a, b []float32) float64 {
	switch v.metric {
	case Euclidean:
		// Map distance onto (0, 1] so larger is still closer.
		return 1 / (1 + float64(vek32.Distance(a, b)))
	case Dot:
		return float64(vek32.Dot(a, b))
	}
	// vek32.CosineSimilarity returns NaN for zero vectors, we want 0
	s := vek32.CosineSimilarity(a, b)
	if math.IsNaN(float64(s)) {
		return 0
	}
	return float64(s)
}

// Vector converts a numeric list value into a float32 slice.
func Vector(v value.Value) ([]float32, bool) {
	list, ok := v.(value.List)
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make([]float32, len(list))
	for i, e := range list {
		f, ok := value.AsFloat(e)
		if !ok {
			return nil, false
		}
		out[i] = float32(f)
	}
	return out, true
}
