package connect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
)

// MetricFunc computes one value per unit of a connectivity matrix
type MetricFunc func(m *Matrix) ([]float64, error)

// DefaultMetricFuncs returns the built-in metric implementations
func DefaultMetricFuncs() map[Metric]MetricFunc {
	return map[Metric]MetricFunc{
		MetricVertexDegree:    VertexDegree,
		MetricBetweenness:     BetweennessCentrality,
		MetricEigenvector:     EigenvectorCentrality,
		MetricSelfRecruitment: SelfRecruitment,
	}
}

// VertexDegree counts, for each unit, the non-zero entries in its row
// (outgoing) and column (incoming). A self-connection counts twice.
func VertexDegree(m *Matrix) ([]float64, error) {
	n := m.Size()
	deg := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m.At(i, j) != 0 {
				deg[i]++
				deg[j]++
			}
		}
	}
	return deg, nil
}

// BetweennessCentrality computes weighted betweenness over the directed
// graph of non-zero off-diagonal entries. Edge length is the reciprocal of
// connectivity strength so strong links form short paths.
func BetweennessCentrality(m *Matrix) ([]float64, error) {
	n := m.Size()
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(int64(i)))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w := m.At(i, j)
			if i == j || w == 0 {
				continue
			}
			if w < 0 {
				return nil, fmt.Errorf("negative connectivity %g between %s and %s", w, m.IDs[i], m.IDs[j])
			}
			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(int64(i)),
				T: simple.Node(int64(j)),
				W: 1 / w,
			})
		}
	}

	paths := path.DijkstraAllPaths(g)
	scores := network.BetweennessWeighted(g, paths)

	bc := make([]float64, n)
	for i := range bc {
		bc[i] = scores[int64(i)]
	}
	return bc, nil
}

const (
	eigenMaxIterations = 5000
	eigenTolerance     = 1e-12
	eigenZero          = 1e-8
)

// EigenvectorCentrality returns the principal eigenvector of the transposed
// matrix, so a unit scores highly when it receives from high-scoring units.
// The result is scaled to a maximum of 1 and does not change when the matrix
// is multiplied by a positive factor. An all-zero matrix yields zeros.
func EigenvectorCentrality(m *Matrix) ([]float64, error) {
	n := m.Size()

	// Largest absolute column sum of the matrix, i.e. the infinity norm of
	// its transpose. It bounds the spectral radius.
	norm := 0.0
	for j := 0; j < n; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += math.Abs(m.At(i, j))
		}
		norm = math.Max(norm, sum)
	}
	if norm == 0 {
		return make([]float64, n), nil
	}

	// Power iteration on Aᵀ/norm + I. The normalised matrix has spectral
	// radius at most 1, so the unit shift never swamps it, and the shift
	// stops plain power iteration oscillating on periodic graphs.
	var b mat.Dense
	b.Scale(1/norm, m.Data.T())
	for i := 0; i < n; i++ {
		b.Set(i, i, b.At(i, i)+1)
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	x := mat.NewVecDense(n, ones)
	next := mat.NewVecDense(n, nil)

	for iter := 0; iter < eigenMaxIterations; iter++ {
		next.MulVec(&b, x)

		scale := 0.0
		for i := 0; i < n; i++ {
			scale = math.Max(scale, math.Abs(next.AtVec(i)))
		}
		if scale == 0 {
			return make([]float64, n), nil
		}
		next.ScaleVec(1/scale, next)

		delta := 0.0
		for i := 0; i < n; i++ {
			delta = math.Max(delta, math.Abs(next.AtVec(i)-x.AtVec(i)))
		}
		x.CopyVec(next)
		if delta < eigenTolerance {
			break
		}
	}

	// Units that receive nothing from the dominant component decay
	// geometrically; report them as exactly zero.
	out := make([]float64, n)
	for i := range out {
		v := x.AtVec(i)
		if v < eigenZero {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// SelfRecruitment returns the matrix diagonal: the share of each unit's
// output that settles back in the same unit.
func SelfRecruitment(m *Matrix) ([]float64, error) {
	n := m.Size()
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		diag[i] = m.At(i, i)
	}
	return diag, nil
}
