// Package aggregate reduces per-replicate energy records into summary
// statistics and writes the statistics files. Reduction is two-stage:
// replicate axis first (per structural variant), then a cross-variant
// average of the already-reduced values. The two stages are never
// collapsed into one flat reduction.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/structbio/ddgscan/internal/extract"
)

// Stats is the reduction of one label along one axis. All slices have the
// value-vector width of the underlying record; scalar records have width 1.
type Stats struct {
	// Raw holds the input entries of the reduction axis: per-replicate
	// vectors for the first stage, per-variant mean vectors for the
	// second.
	Raw [][]float64
	Mean  []float64
	Stdev []float64
	Min   []float64
	Max   []float64
}

// Reduce computes mean, population standard deviation, min, and max along
// the replicate axis. ok is false for an empty series; empty labels are
// skipped by the caller, never zero-filled.
func Reduce(series extract.Series) (Stats, bool) {
	if len(series) == 0 {
		return Stats{}, false
	}

	width := len(series[0])
	s := Stats{
		Raw:   series,
		Mean:  make([]float64, width),
		Stdev: make([]float64, width),
		Min:   make([]float64, width),
		Max:   make([]float64, width),
	}

	for col := 0; col < width; col++ {
		sum := 0.0
		min := math.Inf(1)
		max := math.Inf(-1)
		for _, row := range series {
			v := row[col]
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		mean := sum / float64(len(series))

		variance := 0.0
		for _, row := range series {
			d := row[col] - mean
			variance += d * d
		}
		variance /= float64(len(series))

		s.Mean[col] = mean
		s.Stdev[col] = math.Sqrt(variance)
		s.Min[col] = min
		s.Max[col] = max
	}
	return s, true
}

// Variant holds the first-stage reductions of one structural variant,
// keyed by label.
type Variant map[string]Stats

// CrossVariant performs the second reduction: for every label, the
// per-variant means become the raw entries of a new reduction
// (average-of-averages). Labels appear in sorted order for reproducible
// output; a label missing from some variants is averaged over the
// variants that have it.
func CrossVariant(variants []Variant) map[string]Stats {
	labels := make(map[string]bool)
	for _, v := range variants {
		for label := range v {
			labels[label] = true
		}
	}

	out := make(map[string]Stats, len(labels))
	for label := range labels {
		var perVariantMeans extract.Series
		for _, v := range variants {
			if s, ok := v[label]; ok {
				perVariantMeans = append(perVariantMeans, s.Mean)
			}
		}
		if s, ok := Reduce(perVariantMeans); ok {
			out[label] = s
		}
	}
	return out
}

// SortedLabels returns the labels of a stats map in stable order.
func SortedLabels(stats map[string]Stats) []string {
	labels := make([]string, 0, len(stats))
	for l := range stats {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// formatValue renders one float the way the statistics files expect.
func formatValue(v float64) string {
	return fmt.Sprintf("%.6g", v)
}
