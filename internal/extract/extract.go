// Package extract reads the engine's numeric output files into structured
// per-label energy records. It is tolerant at the run level: malformed or
// missing output fails that run's extraction with a recoverable error and
// never touches the input files.
package extract

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/structbio/ddgscan/internal/errdefs"
)

// Series holds the per-replicate values for one label. Each replicate
// contributes a fixed-width vector; scalar outputs are width-1 vectors.
type Series [][]float64

// Record maps a label (mutation label, or unordered chain pair) to its
// replicate series.
type Record map[string]Series

// row is one parsed data line of an fxout file.
type row struct {
	model  string
	fields []string
	values []float64
}

// readRows parses the data rows of an fxout file. Header and comment
// lines are recognized by their first column: data rows name a structure
// model file. Columns after textual markers are the numeric values.
func readRows(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IO(fmt.Sprintf("engine output %s unavailable", path), err)
	}
	defer f.Close()

	var rows []row
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.HasSuffix(fields[0], ".pdb") {
			continue
		}

		r := row{model: fields[0]}
		for _, fld := range fields[1:] {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				if len(r.values) > 0 {
					return nil, errdefs.Parse(fmt.Sprintf("%s: non-numeric value %q after numeric columns", path, fld), nil)
				}
				r.fields = append(r.fields, fld)
				continue
			}
			r.values = append(r.values, v)
		}
		if len(r.values) == 0 {
			return nil, errdefs.Parse(fmt.Sprintf("%s: data row for %s has no numeric columns", path, r.model), nil)
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errdefs.IO(fmt.Sprintf("cannot read engine output %s", path), err)
	}
	return rows, nil
}

// Mutations reads a mutate run's energy difference file. Rows are
// consumed label-major: all replicates of a label are consecutive, labels
// in run order. The per-label count must equal the declared replicate
// count.
func Mutations(path string, labels []string, replicates int) (Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	want := len(labels) * replicates
	if len(rows) != want {
		return nil, errdefs.Parse(fmt.Sprintf(
			"%s: %d data rows, want %d (%d labels x %d replicates)",
			path, len(rows), want, len(labels), replicates), nil)
	}

	rec := make(Record, len(labels))
	width := len(rows[0].values)
	for i, r := range rows {
		if len(r.values) != width {
			return nil, errdefs.Parse(fmt.Sprintf("%s: row %d has %d values, want %d", path, i+1, len(r.values), width), nil)
		}
		label := labels[i/replicates]
		rec[label] = append(rec[label], r.values)
	}
	return rec, nil
}

// PairKey returns the unordered chain-pair label, e.g. PairKey("B","A")
// == "A-B".
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}

// Interactions reads an interface run's interaction energy file. Data
// rows carry two chain-label marker columns before the values; series for
// several pairs may interleave. Every pair's series must have exactly
// replicates entries.
func Interactions(path string, replicates int) (Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	rec := make(Record)
	for i, r := range rows {
		if len(r.fields) < 2 {
			return nil, errdefs.Parse(fmt.Sprintf("%s: row %d lacks chain-pair markers", path, i+1), nil)
		}
		key := PairKey(r.fields[0], r.fields[1])
		rec[key] = append(rec[key], r.values)
	}
	if len(rec) == 0 {
		return nil, errdefs.Parse(fmt.Sprintf("%s: no interaction rows", path), nil)
	}

	for key, series := range rec {
		if len(series) != replicates {
			return nil, errdefs.Parse(fmt.Sprintf(
				"%s: pair %s has %d replicates, want %d", path, key, len(series), replicates), nil)
		}
	}
	return rec, nil
}
