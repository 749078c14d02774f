package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/mutation"
)

// RepairRun is the baseline structural-cleanup pass, one per input
// structure. It has no mutation and no dependencies.
type RepairRun struct {
	Run
	// StructureName is the basename of the input structure, used to
	// locate the repaired output.
	StructureName string
}

// NewRepairRun builds a repair run for one input structure.
func NewRepairRun(baseDir, structName, structPath, template string, link bool) *RepairRun {
	r := &RepairRun{StructureName: structName}
	r.Name = "repair_" + structName
	r.Dir = filepath.Join(baseDir, r.Name)
	r.Inputs = []Input{{Path: structPath}}
	r.Template = template
	r.Replicates = 1
	r.Link = link
	return r
}

// RepairedPath is the repaired structure the engine leaves in the run
// directory on success.
func (r *RepairRun) RepairedPath() string {
	return filepath.Join(r.Dir, r.StructureName+"_repaired.pdb")
}

func (r *RepairRun) Prepare() error {
	if err := r.ensureDir(); err != nil {
		return err
	}
	if err := r.stageInputs(); err != nil {
		return err
	}
	if err := r.writeScript(r.inputBasenames(), ""); err != nil {
		return err
	}
	r.markPrepared()
	return nil
}

func (r *RepairRun) Command() []string {
	return []string{"-f", TemplateFileName}
}

// MutateRun introduces the point mutations for one position, computing
// energies over Replicates repeats. It depends on its structure's repair
// run.
type MutateRun struct {
	Run
	// StructureName attributes results to a structural variant.
	StructureName string
	// Position is the mutated site (possibly a multimer group).
	Position mutation.Position
	// Targets is the ordered target type list for this position.
	Targets []string
}

// NewMutateRun builds a mutate run for one position of one repaired
// structure.
func NewMutateRun(baseDir, structName string, pos mutation.Position, targets []string, repair *RepairRun, template string, replicates int, link bool) *MutateRun {
	m := &MutateRun{StructureName: structName, Position: pos, Targets: targets}
	m.Name = structName + "_" + pos.Name()
	m.Dir = filepath.Join(baseDir, m.Name)
	m.Inputs = []Input{{Path: repair.RepairedPath(), FromDep: true}}
	m.Template = template
	m.Replicates = replicates
	m.Link = link
	m.DependOn(repair)
	return m
}

// Labels returns the mutation labels of this run in target order.
func (m *MutateRun) Labels() []string {
	out := make([]string, len(m.Targets))
	for i, t := range m.Targets {
		out[i] = m.Position.MutationLabel(t)
	}
	return out
}

// DifPath is the engine's per-mutation energy difference file.
func (m *MutateRun) DifPath() string {
	return filepath.Join(m.Dir, "Dif_"+m.Name+".fxout")
}

// ModelPath is the i-th mutant model (1-based replicate index) the engine
// writes on success.
func (m *MutateRun) ModelPath(i int) string {
	return filepath.Join(m.Dir, fmt.Sprintf("%s_%d.pdb", m.Name, i))
}

func (m *MutateRun) Prepare() error {
	if err := m.ensureDir(); err != nil {
		return err
	}
	if err := m.stageInputs(); err != nil {
		return err
	}
	if err := m.writeMutationList(); err != nil {
		return err
	}
	if err := m.writeScript(m.inputBasenames(), MutationListFileName); err != nil {
		return err
	}
	m.markPrepared()
	return nil
}

// writeMutationList emits the engine's descriptor file: one line per
// target, group members comma-joined and terminated with a semicolon.
func (m *MutateRun) writeMutationList() error {
	var b strings.Builder
	for _, t := range m.Targets {
		b.WriteString(strings.Join(m.Position.Descriptors(t), ","))
		b.WriteString(";\n")
	}
	path := filepath.Join(m.Dir, MutationListFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errdefs.IO(fmt.Sprintf("run %s: cannot write mutation list", m.Name), err)
	}
	return nil
}

func (m *MutateRun) Command() []string {
	return []string{"-f", TemplateFileName}
}

// InterfaceRun computes chain-pair interaction energies over the mutant
// models an already-succeeded mutate run produced.
type InterfaceRun struct {
	Run
	// StructureName attributes results to a structural variant.
	StructureName string
	// PositionName ties the interface energies back to the mutated site.
	PositionName string
}

// NewInterfaceRun builds an interface run over the mutant models of m.
func NewInterfaceRun(baseDir string, m *MutateRun, template string, link bool) *InterfaceRun {
	r := &InterfaceRun{StructureName: m.StructureName, PositionName: m.Position.Name()}
	r.Name = m.Name + "_iface"
	r.Dir = filepath.Join(baseDir, r.Name)
	for i := 1; i <= m.Replicates; i++ {
		r.Inputs = append(r.Inputs, Input{Path: m.ModelPath(i), FromDep: true})
	}
	r.Template = template
	r.Replicates = m.Replicates
	r.Link = m.Link
	r.DependOn(m)
	return r
}

// InteractionPath is the engine's chain-pair interaction energy file.
func (r *InterfaceRun) InteractionPath() string {
	return filepath.Join(r.Dir, "Interaction_"+r.Name+".fxout")
}

func (r *InterfaceRun) Prepare() error {
	if err := r.ensureDir(); err != nil {
		return err
	}
	if err := r.stageInputs(); err != nil {
		return err
	}
	if err := r.writeScript(r.inputBasenames(), ""); err != nil {
		return err
	}
	r.markPrepared()
	return nil
}

func (r *InterfaceRun) Command() []string {
	return []string{"-f", TemplateFileName}
}
