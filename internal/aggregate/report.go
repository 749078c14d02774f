package aggregate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/structbio/ddgscan/internal/errdefs"
)

// Result directory layout under the results root.
const (
	MutationDirName      = "mutation_ddgs"
	InterfaceDirName     = "interface_ddgs"
	FinalAveragesDirName = "final_averages"
	BaselineFileName     = "self_noise_baseline.txt"
)

// Writer emits statistics files in the fixed directory layout and keeps
// the skipped-labels log.
type Writer struct {
	// ResultsDir is the results root.
	ResultsDir string

	logger  *slog.Logger
	skipped []string
}

// NewWriter creates a report writer rooted at resultsDir.
func NewWriter(resultsDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{ResultsDir: resultsDir, logger: logger}
}

// Skip records a label with no successful data. Skipped labels are
// surfaced in the final warning list instead of appearing zero-filled in
// the output.
func (w *Writer) Skip(label, reason string) {
	w.logger.Warn("skipping label", "label", label, "reason", reason)
	w.skipped = append(w.skipped, label)
}

// Skipped returns the labels skipped so far.
func (w *Writer) Skipped() []string { return w.skipped }

// WriteMutation writes per-structure mutation statistics:
// results/mutation_ddgs/<structure>/<label>.
func (w *Writer) WriteMutation(structName, label string, s Stats) error {
	dir := filepath.Join(w.ResultsDir, MutationDirName, structName)
	return w.writeStats(dir, label, s)
}

// WriteMutationFinal writes cross-variant mutation statistics:
// results/mutation_ddgs/final_averages/<label>.
func (w *Writer) WriteMutationFinal(label string, s Stats) error {
	dir := filepath.Join(w.ResultsDir, MutationDirName, FinalAveragesDirName)
	return w.writeStats(dir, label, s)
}

// WriteInterface writes per-structure chain-pair statistics:
// results/interface_ddgs/<structure>/<chainA>-<chainB>.
func (w *Writer) WriteInterface(structName, pairLabel string, s Stats) error {
	dir := filepath.Join(w.ResultsDir, InterfaceDirName, structName)
	return w.writeStats(dir, pairLabel, s)
}

// WriteInterfaceFinal writes cross-variant chain-pair statistics. The
// file is named from the pair label itself, never from a run name.
func (w *Writer) WriteInterfaceFinal(pairLabel string, s Stats) error {
	dir := filepath.Join(w.ResultsDir, InterfaceDirName, FinalAveragesDirName)
	return w.writeStats(dir, pairLabel, s)
}

// writeStats renders one statistics file: the raw entries of the
// reduction axis, then the average, stdev, max, min tag rows in that
// fixed order.
func (w *Writer) writeStats(dir, label string, s Stats) error {
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return errdefs.Directory(fmt.Sprintf("cannot create result directory %s", dir), err)
	}

	var b strings.Builder
	for _, row := range s.Raw {
		b.WriteString(formatRow("raw", row))
	}
	b.WriteString(formatRow("average", s.Mean))
	b.WriteString(formatRow("stdev", s.Stdev))
	b.WriteString(formatRow("max", s.Max))
	b.WriteString(formatRow("min", s.Min))

	path := filepath.Join(dir, label)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot write statistics file %s", path), err)
	}
	return nil
}

func formatRow(tag string, values []float64) string {
	parts := make([]string, 0, len(values)+1)
	parts = append(parts, tag)
	for _, v := range values {
		parts = append(parts, formatValue(v))
	}
	return strings.Join(parts, "\t") + "\n"
}

// BaselineRow is one position's entry in the self-mutation noise report.
type BaselineRow struct {
	Position string
	Stats    Stats
}

// WriteBaseline writes the consolidated self-mutation baseline report:
// one row per position with its replicate-axis statistics.
func (w *Writer) WriteBaseline(rows []BaselineRow) error {
	dir := filepath.Join(w.ResultsDir, MutationDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return errdefs.Directory(fmt.Sprintf("cannot create result directory %s", dir), err)
	}

	var b strings.Builder
	b.WriteString("position\taverage\tstdev\tmax\tmin\n")
	for _, r := range rows {
		parts := []string{r.Position}
		for _, col := range [][]float64{r.Stats.Mean, r.Stats.Stdev, r.Stats.Max, r.Stats.Min} {
			vals := make([]string, len(col))
			for i, v := range col {
				vals[i] = formatValue(v)
			}
			parts = append(parts, strings.Join(vals, ","))
		}
		b.WriteString(strings.Join(parts, "\t") + "\n")
	}

	path := filepath.Join(dir, BaselineFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot write baseline report %s", path), err)
	}
	return nil
}
