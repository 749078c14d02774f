// Package pipeline orchestrates a full scan: load structures, build the
// mutation model, stage and schedule runs phase by phase, extract the
// engine's numeric outputs, and reduce them into the statistics reports.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/structbio/ddgscan/internal/aggregate"
	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/extract"
	"github.com/structbio/ddgscan/internal/mutation"
	"github.com/structbio/ddgscan/internal/run"
	"github.com/structbio/ddgscan/internal/scheduler"
	"github.com/structbio/ddgscan/internal/state"
	"github.com/structbio/ddgscan/internal/structure"
	"github.com/structbio/ddgscan/internal/workdir"
)

// Config holds everything one scan needs.
type Config struct {
	// EngineBinary is the external energy engine executable.
	EngineBinary string
	// Templates are the caller-supplied run script texts.
	RepairTemplate    string
	MutateTemplate    string
	InterfaceTemplate string

	// WorkDir is the working tree root; ResultsDir the report root.
	WorkDir    string
	ResultsDir string
	// HistoryPath is the scan history database; empty disables history.
	HistoryPath string

	// Workers bounds concurrent engine processes.
	Workers int
	// Replicates per mutate run.
	Replicates int
	// Timeout per engine process; zero means none.
	Timeout time.Duration

	// Staging and cleanup policy.
	Link       bool
	Keep       bool
	Archive    bool
	CaptureLog bool

	// Mutation model options.
	Targets   []string
	SelfOnly  bool
	Interface bool
	Multimer  bool

	Logger *slog.Logger
}

// Pipeline executes scans against one configuration.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	mgr    *workdir.Manager
	sched  *scheduler.Scheduler
	store  *state.Store
}

// Summary is the user-facing outcome of a scan.
type Summary struct {
	ScanID     string
	Mode       string
	Structures []StructureSummary
	// Labels is the number of statistics records written per final pass.
	Labels int
	// Skipped lists labels with no successful data.
	Skipped []string
	Elapsed time.Duration
}

// StructureSummary counts run outcomes for one structural variant.
type StructureSummary struct {
	Name      string
	Succeeded int
	Failed    int
}

// New validates the configuration and builds a pipeline. A missing
// engine binary fails here, before any run is staged.
func New(cfg Config) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.EngineBinary == "" {
		return nil, errdefs.Configuration("engine binary not configured", nil)
	}
	if info, err := os.Stat(cfg.EngineBinary); err != nil || info.IsDir() {
		return nil, errdefs.Configuration(fmt.Sprintf("engine binary %s not usable", cfg.EngineBinary), err)
	}
	if cfg.Replicates < 1 {
		cfg.Replicates = 1
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		mgr:    workdir.New(cfg.WorkDir, logger),
		sched: scheduler.New(scheduler.Config{
			Binary:  cfg.EngineBinary,
			Workers: cfg.Workers,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}),
	}

	if cfg.HistoryPath != "" {
		store, err := state.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, errdefs.Configuration("cannot open scan history", err)
		}
		p.store = store
	}
	return p, nil
}

// Close releases the history store.
func (p *Pipeline) Close() error {
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

func (p *Pipeline) mode() string {
	switch {
	case p.cfg.SelfOnly:
		return "self"
	case p.cfg.Interface:
		return "interface"
	default:
		return "mutation"
	}
}

// Scan runs the whole pipeline over the input structures. Fatal errors
// (configuration, validation, directory, repair-phase failure) return
// non-nil; partial mutate/interface failures are surfaced through
// Summary.Skipped with a nil error.
func (p *Pipeline) Scan(ctx context.Context, structurePaths []string) (*Summary, error) {
	start := time.Now()

	structures, err := structure.LoadAll(structurePaths)
	if err != nil {
		return nil, err
	}
	// Interface energies need at least two chains; fail before any run
	// directory exists.
	if p.cfg.Interface && len(structures[0].Chains) < 2 {
		return nil, errdefs.Validation(fmt.Sprintf(
			"interface energies requested but structure %s has a single chain", structures[0].Name), nil)
	}

	model, err := mutation.Build(structures[0], mutation.Options{
		Targets:  p.cfg.Targets,
		SelfOnly: p.cfg.SelfOnly,
		Multimer: p.cfg.Multimer,
	})
	if err != nil {
		return nil, err
	}

	if err := p.mgr.EnsureBase(); err != nil {
		return nil, err
	}

	scanID := ""
	if p.store != nil {
		names := make([]string, len(structures))
		for i, s := range structures {
			names[i] = s.Name
		}
		scan, err := p.store.CreateScan(p.mode(), names, p.cfg.Replicates)
		if err != nil {
			return nil, errdefs.Configuration("cannot record scan", err)
		}
		scanID = scan.ID
	}

	summary, err := p.scan(ctx, scanID, structures, model)
	if p.store != nil && scanID != "" {
		status := state.ScanStatusCompleted
		msg := ""
		if err != nil {
			status = state.ScanStatusFailed
			msg = err.Error()
		}
		if cerr := p.store.CompleteScan(scanID, status, msg); cerr != nil {
			p.logger.Warn("cannot complete scan record", "error", cerr)
		}
	}
	if err != nil {
		return nil, err
	}

	summary.ScanID = scanID
	summary.Mode = p.mode()
	summary.Elapsed = time.Since(start).Round(time.Millisecond)
	return summary, nil
}

func (p *Pipeline) scan(ctx context.Context, scanID string, structures []*structure.Structure, model *mutation.Model) (*Summary, error) {
	// Phase 1: repair. Any failure aborts the batch.
	repairs, err := p.repairPhase(ctx, scanID, structures)
	if err != nil {
		return nil, err
	}

	// Phase 2: mutate (+ interface) with partial-failure tolerance.
	mutates, ifaces, err := p.buildMutationRuns(structures, model, repairs)
	if err != nil {
		return nil, err
	}

	batch := make([]run.Runner, 0, len(mutates)+len(ifaces))
	for _, m := range mutates {
		batch = append(batch, m)
	}
	for _, r := range ifaces {
		batch = append(batch, r)
	}

	p.logger.Info("executing mutation phase", "runs", len(batch), "workers", p.cfg.Workers)
	results := p.sched.Execute(ctx, batch)
	p.recordResults(scanID, batch)

	// Phase 3: extraction and aggregation.
	summary := p.summarize(structures, results, batch)
	writer := aggregate.NewWriter(p.cfg.ResultsDir, p.logger)

	if err := p.aggregateMutations(structures, model, mutates, writer, summary); err != nil {
		return nil, err
	}
	if p.cfg.Interface {
		if err := p.aggregateInterfaces(structures, ifaces, writer); err != nil {
			return nil, err
		}
	}
	summary.Skipped = writer.Skipped()

	if err := p.writeManifest(scanID, structures, model, summary); err != nil {
		return nil, err
	}

	all := batch
	for _, r := range repairs {
		all = append(all, r)
	}
	p.cleanup(all)
	return summary, nil
}

// repairPhase stages and executes one repair run per structure.
func (p *Pipeline) repairPhase(ctx context.Context, scanID string, structures []*structure.Structure) (map[string]*run.RepairRun, error) {
	repairs := make(map[string]*run.RepairRun, len(structures))
	batch := make([]run.Runner, 0, len(structures))
	for _, s := range structures {
		r := run.NewRepairRun(p.cfg.WorkDir, s.Name, s.Path, p.cfg.RepairTemplate, p.cfg.Link)
		r.CaptureLog = p.cfg.CaptureLog
		if err := r.Prepare(); err != nil {
			return nil, err
		}
		repairs[s.Name] = r
		batch = append(batch, r)
	}

	p.logger.Info("executing repair phase", "runs", len(batch), "workers", p.cfg.Workers)
	results := p.sched.Execute(ctx, batch)
	p.recordResults(scanID, batch)

	for _, res := range results {
		if !res.OK {
			return nil, fmt.Errorf("repair phase failed for %s: %w", res.Name, res.Err)
		}
	}
	// A reported success without the repaired structure is treated as a
	// repair failure, which is fatal at this phase.
	for _, r := range repairs {
		if _, err := os.Stat(r.RepairedPath()); err != nil {
			return nil, fmt.Errorf("repair phase failed for %s: %w", r.Name,
				errdefs.IO(fmt.Sprintf("repaired structure %s missing", r.RepairedPath()), err))
		}
	}
	return repairs, nil
}

// buildMutationRuns stages one mutate run per position per structure and
// one interface run per mutate run when interface energies are requested.
func (p *Pipeline) buildMutationRuns(structures []*structure.Structure, model *mutation.Model, repairs map[string]*run.RepairRun) ([]*run.MutateRun, []*run.InterfaceRun, error) {
	var mutates []*run.MutateRun
	var ifaces []*run.InterfaceRun

	for _, s := range structures {
		repair := repairs[s.Name]
		for _, pos := range model.Positions {
			m := run.NewMutateRun(p.cfg.WorkDir, s.Name, pos, model.TargetsFor(pos), repair, p.cfg.MutateTemplate, p.cfg.Replicates, p.cfg.Link)
			m.CaptureLog = p.cfg.CaptureLog
			if err := m.Prepare(); err != nil {
				return nil, nil, err
			}
			mutates = append(mutates, m)

			if p.cfg.Interface {
				r := run.NewInterfaceRun(p.cfg.WorkDir, m, p.cfg.InterfaceTemplate, p.cfg.Link)
				r.CaptureLog = p.cfg.CaptureLog
				if err := r.Prepare(); err != nil {
					return nil, nil, err
				}
				ifaces = append(ifaces, r)
			}
		}
	}
	return mutates, ifaces, nil
}

// aggregateMutations extracts every succeeded mutate run, reduces per
// structure along the replicate axis, then cross-variant, and writes the
// statistics files. Labels with no successful data anywhere are skipped
// with a warning.
func (p *Pipeline) aggregateMutations(structures []*structure.Structure, model *mutation.Model, mutates []*run.MutateRun, writer *aggregate.Writer, summary *Summary) error {
	perStructure := make(map[string]extract.Record, len(structures))
	for _, s := range structures {
		perStructure[s.Name] = make(extract.Record)
	}

	for _, m := range mutates {
		if m.State() != run.Succeeded {
			continue
		}
		rec, err := extract.Mutations(m.DifPath(), m.Labels(), m.Replicates)
		if err != nil {
			// Recoverable: this run's labels simply have no data.
			p.logger.Warn("extraction failed", "run", m.Name, "error", err)
			continue
		}
		for label, series := range rec {
			perStructure[m.StructureName][label] = append(perStructure[m.StructureName][label], series...)
		}
	}

	var variants []aggregate.Variant
	for _, s := range structures {
		variant := make(aggregate.Variant)
		for label, series := range perStructure[s.Name] {
			stats, ok := aggregate.Reduce(series)
			if !ok {
				continue
			}
			variant[label] = stats
			if err := writer.WriteMutation(s.Name, label, stats); err != nil {
				return err
			}
		}
		variants = append(variants, variant)
	}

	final := aggregate.CrossVariant(variants)
	for _, label := range aggregate.SortedLabels(final) {
		if err := writer.WriteMutationFinal(label, final[label]); err != nil {
			return err
		}
	}
	summary.Labels = len(final)

	// Every label the model generates but no structure produced data for
	// is reported skipped, never zero-filled.
	for _, pos := range model.Positions {
		for _, target := range model.TargetsFor(pos) {
			label := pos.MutationLabel(target)
			if _, ok := final[label]; !ok {
				writer.Skip(label, "no successful replicates")
			}
		}
	}

	if model.SelfOnly {
		rows := make([]aggregate.BaselineRow, 0, len(model.Positions))
		for _, pos := range model.Positions {
			label := pos.MutationLabel(pos.WildType())
			stats, ok := final[label]
			if !ok {
				continue
			}
			rows = append(rows, aggregate.BaselineRow{Position: pos.Name(), Stats: stats})
		}
		if err := writer.WriteBaseline(rows); err != nil {
			return err
		}
	}
	return nil
}

// aggregateInterfaces extracts succeeded interface runs and reduces the
// chain-pair series per structure, then cross-variant. Final-averages
// files are named from the pair label.
func (p *Pipeline) aggregateInterfaces(structures []*structure.Structure, ifaces []*run.InterfaceRun, writer *aggregate.Writer) error {
	perStructure := make(map[string]extract.Record, len(structures))
	for _, s := range structures {
		perStructure[s.Name] = make(extract.Record)
	}

	for _, r := range ifaces {
		if r.State() != run.Succeeded {
			continue
		}
		rec, err := extract.Interactions(r.InteractionPath(), r.Replicates)
		if err != nil {
			p.logger.Warn("extraction failed", "run", r.Name, "error", err)
			continue
		}
		for pair, series := range rec {
			perStructure[r.StructureName][pair] = append(perStructure[r.StructureName][pair], series...)
		}
	}

	var variants []aggregate.Variant
	pairs := make(map[string]bool)
	for _, s := range structures {
		variant := make(aggregate.Variant)
		for pair, series := range perStructure[s.Name] {
			stats, ok := aggregate.Reduce(series)
			if !ok {
				continue
			}
			variant[pair] = stats
			pairs[pair] = true
			if err := writer.WriteInterface(s.Name, pair, stats); err != nil {
				return err
			}
		}
		variants = append(variants, variant)
	}

	final := aggregate.CrossVariant(variants)
	for _, pair := range aggregate.SortedLabels(final) {
		if err := writer.WriteInterfaceFinal(pair, final[pair]); err != nil {
			return err
		}
	}
	return nil
}

// summarize tallies run outcomes per structure.
func (p *Pipeline) summarize(structures []*structure.Structure, results []scheduler.Result, batch []run.Runner) *Summary {
	byName := make(map[string]*StructureSummary, len(structures))
	summary := &Summary{}
	for _, s := range structures {
		summary.Structures = append(summary.Structures, StructureSummary{Name: s.Name})
	}
	for i := range summary.Structures {
		byName[summary.Structures[i].Name] = &summary.Structures[i]
	}

	structOf := make(map[string]string, len(batch))
	for _, r := range batch {
		switch v := r.(type) {
		case *run.MutateRun:
			structOf[v.Name] = v.StructureName
		case *run.InterfaceRun:
			structOf[v.Name] = v.StructureName
		}
	}

	for _, res := range results {
		s, ok := byName[structOf[res.Name]]
		if !ok {
			continue
		}
		if res.OK {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return summary
}

// recordResults writes terminal run states to the history store.
func (p *Pipeline) recordResults(scanID string, batch []run.Runner) {
	if p.store == nil || scanID == "" {
		return
	}
	for _, r := range batch {
		base := r.Base()
		kind := "repair"
		switch r.(type) {
		case *run.MutateRun:
			kind = "mutate"
		case *run.InterfaceRun:
			kind = "interface"
		}
		errMsg := ""
		if base.Err() != nil {
			errMsg = base.Err().Error()
		}
		outcome := state.RunOutcome{Name: base.Name, Kind: kind, State: base.State().String(), Error: errMsg}
		if err := p.store.RecordRun(scanID, outcome); err != nil {
			p.logger.Warn("cannot record run outcome", "run", base.Name, "error", err)
		}
	}
}

// cleanup applies the keep/archive policy to finished run directories.
func (p *Pipeline) cleanup(batch []run.Runner) {
	for _, r := range batch {
		dir := r.Base().Dir
		if !p.cfg.Keep {
			if err := p.mgr.CleanIntermediate(dir); err != nil {
				p.logger.Warn("cleanup failed", "dir", dir, "error", err)
			}
		}
		if p.cfg.Archive {
			if err := p.mgr.Archive(dir); err != nil {
				p.logger.Warn("archive failed", "dir", dir, "error", err)
			}
		}
	}
}
