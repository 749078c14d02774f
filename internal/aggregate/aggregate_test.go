package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structbio/ddgscan/internal/extract"
)

func scalarSeries(values ...float64) extract.Series {
	s := make(extract.Series, len(values))
	for i, v := range values {
		s[i] = []float64{v}
	}
	return s
}

func TestReduceScalar(t *testing.T) {
	s, ok := Reduce(scalarSeries(1.0, 2.0, 3.0, 4.0))
	require.True(t, ok)
	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	// Population stdev of 1..4.
	assert.InDelta(t, math.Sqrt(1.25), s.Stdev[0], 1e-12)
	assert.Equal(t, 1.0, s.Min[0])
	assert.Equal(t, 4.0, s.Max[0])
}

func TestReduceVector(t *testing.T) {
	series := extract.Series{{1.0, 10.0}, {3.0, 30.0}}
	s, ok := Reduce(series)
	require.True(t, ok)
	assert.Equal(t, []float64{2.0, 20.0}, s.Mean)
	assert.Equal(t, []float64{1.0, 10.0}, s.Min)
	assert.Equal(t, []float64{3.0, 30.0}, s.Max)
}

func TestReduceEmptySeriesNotOK(t *testing.T) {
	_, ok := Reduce(nil)
	assert.False(t, ok)
}

func TestReduceOrderIndependent(t *testing.T) {
	values := []float64{0.5, -1.25, 3.75, 2.0, -0.5, 1.0}
	base, ok := Reduce(scalarSeries(values...))
	require.True(t, ok)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]float64(nil), values...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		s, ok := Reduce(scalarSeries(shuffled...))
		require.True(t, ok)
		assert.InDelta(t, base.Mean[0], s.Mean[0], 1e-12)
		assert.InDelta(t, base.Stdev[0], s.Stdev[0], 1e-12)
		assert.Equal(t, base.Min[0], s.Min[0])
		assert.Equal(t, base.Max[0], s.Max[0])
	}
}

func TestCrossVariantIsAverageOfAverages(t *testing.T) {
	// Variant 1: replicates {1,3} -> mean 2. Variant 2: {10,20,30} -> 20.
	// Average-of-averages is 11, not the flat mean of all five (12.8).
	v1, ok := Reduce(scalarSeries(1, 3))
	require.True(t, ok)
	v2, ok := Reduce(scalarSeries(10, 20, 30))
	require.True(t, ok)

	final := CrossVariant([]Variant{
		{"GA104W": v1},
		{"GA104W": v2},
	})
	require.Contains(t, final, "GA104W")
	assert.InDelta(t, 11.0, final["GA104W"].Mean[0], 1e-12)
}

func TestCrossVariantToleratesMissingLabel(t *testing.T) {
	v1, _ := Reduce(scalarSeries(2, 4))
	final := CrossVariant([]Variant{
		{"GA104W": v1},
		{}, // variant with no data for the label
	})
	require.Contains(t, final, "GA104W")
	assert.InDelta(t, 3.0, final["GA104W"].Mean[0], 1e-12)
}

func TestSortedLabels(t *testing.T) {
	s, _ := Reduce(scalarSeries(1))
	labels := SortedLabels(map[string]Stats{"b": s, "a": s, "c": s})
	assert.Equal(t, []string{"a", "b", "c"}, labels)
}
