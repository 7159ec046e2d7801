package connect

import (
	"fmt"
	"math"
	"testing"
)

func mustMatrix(t *testing.T, values ...float64) *Matrix {
	t.Helper()
	n := int(math.Sqrt(float64(len(values))))
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	m, err := NewMatrix(ids, values)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	return m
}

func assertValues(t *testing.T, name string, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d values, want %d", name, len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("%s[%d] = %v, want %v", name, i, got[i], want[i])
		}
	}
}

func TestVertexDegree(t *testing.T) {
	m := mustMatrix(t,
		1, 2, 0,
		0, 0, 3,
		0, 0, 0,
	)
	got, err := VertexDegree(m)
	if err != nil {
		t.Fatal(err)
	}
	// The self-connection of a counts as both in and out
	assertValues(t, "degree", got, []float64{3, 2, 1}, 0)
}

func TestBetweennessCentrality_Chain(t *testing.T) {
	m := mustMatrix(t,
		0, 1, 0,
		0, 0, 1,
		0, 0, 0,
	)
	got, err := BetweennessCentrality(m)
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, "betweenness", got, []float64{0, 1, 0}, 1e-12)
}

func TestBetweennessCentrality_StrengthIsInverseDistance(t *testing.T) {
	tests := []struct {
		name   string
		direct float64
		want   []float64
	}{
		// Two hops of length 2 beat a direct link of length 10
		{"weak direct link", 0.1, []float64{0, 1, 0}},
		// A direct link of length 1.25 beats two hops of total length 4
		{"strong direct link", 0.8, []float64{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMatrix(t,
				0, 0.5, tt.direct,
				0, 0, 0.5,
				0, 0, 0,
			)
			got, err := BetweennessCentrality(m)
			if err != nil {
				t.Fatal(err)
			}
			assertValues(t, "betweenness", got, tt.want, 1e-12)
		})
	}
}

func TestBetweennessCentrality_IgnoresDiagonal(t *testing.T) {
	m := mustMatrix(t,
		5, 1,
		1, 5,
	)
	got, err := BetweennessCentrality(m)
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, "betweenness", got, []float64{0, 0}, 0)
}

func TestBetweennessCentrality_Negative(t *testing.T) {
	m := mustMatrix(t,
		0, -1,
		0, 0,
	)
	if _, err := BetweennessCentrality(m); err == nil {
		t.Error("expected error for negative connectivity")
	}
}

func TestEigenvectorCentrality(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{
			name:   "symmetric pair",
			values: []float64{0, 1, 1, 0},
			want:   []float64{1, 1},
		},
		{
			// b receives twice as strongly as a
			name:   "asymmetric pair",
			values: []float64{0, 2, 1, 0},
			want:   []float64{1 / math.Sqrt2, 1},
		},
		{
			name:   "directed cycle",
			values: []float64{0, 1, 0, 0, 0, 1, 1, 0, 0},
			want:   []float64{1, 1, 1},
		},
		{
			name:   "all zero",
			values: []float64{0, 0, 0, 0},
			want:   []float64{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EigenvectorCentrality(mustMatrix(t, tt.values...))
			if err != nil {
				t.Fatal(err)
			}
			assertValues(t, "eigenvector", got, tt.want, 1e-6)
		})
	}
}

func TestEigenvectorCentrality_ScaleInvariant(t *testing.T) {
	// A four unit chain plus a fifth unit that only sends to the first
	phi := (math.Sqrt(5) - 1) / 2
	base := []float64{
		0, 1, 0, 0, 0,
		1, 0, 1, 0, 0,
		0, 1, 0, 1, 0,
		0, 0, 1, 0, 0,
		1, 0, 0, 0, 0,
	}
	want := []float64{phi, 1, 1, phi, 0}

	for _, scale := range []float64{1, 1e-4, 1e-7, 250} {
		t.Run(fmt.Sprintf("scale %g", scale), func(t *testing.T) {
			values := make([]float64, len(base))
			for i, v := range base {
				values[i] = v * scale
			}
			got, err := EigenvectorCentrality(mustMatrix(t, values...))
			if err != nil {
				t.Fatal(err)
			}
			assertValues(t, "eigenvector", got, want, 1e-6)
		})
	}
}

func TestEigenvectorCentrality_DispersalProbabilities(t *testing.T) {
	// Larval settlement shares are small; b receives twice as strongly as a
	got, err := EigenvectorCentrality(mustMatrix(t,
		0, 0.002,
		0.001, 0,
	))
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, "eigenvector", got, []float64{1 / math.Sqrt2, 1}, 1e-6)
}

func TestSelfRecruitment(t *testing.T) {
	m := mustMatrix(t,
		0.4, 0.1,
		0.2, 0.9,
	)
	got, err := SelfRecruitment(m)
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, "self recruitment", got, []float64{0.4, 0.9}, 0)
}

func TestDefaultMetricFuncs_CoversAllMetrics(t *testing.T) {
	funcs := DefaultMetricFuncs()
	for _, metric := range AllMetrics() {
		if funcs[metric] == nil {
			t.Errorf("no function for %s", metric)
		}
	}
}
