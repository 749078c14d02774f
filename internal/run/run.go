// Package run models one unit of work for the external energy engine: a
// working directory, staged input structures, and a rendered run script.
// The three variants (repair, mutate, interface) share the common Run
// record and dispatch behavior through the Runner interface.
package run

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/structbio/ddgscan/internal/errdefs"
)

// Input is one structure file a run needs in its directory.
type Input struct {
	// Path is the source location of the file.
	Path string
	// FromDep marks inputs produced by a dependency run; they may not
	// exist until that run has succeeded, so initial staging tolerates
	// their absence.
	FromDep bool
}

// Run is the common record shared by all run variants.
type Run struct {
	// Name is unique within a batch and drives directory naming and
	// result attribution.
	Name string
	// Dir is the isolated working directory.
	Dir string
	// Inputs are the structure files staged into Dir.
	Inputs []Input
	// Template is the caller-supplied run script text, rendered during
	// Prepare.
	Template string
	// Replicates is the engine's repeat count for this run.
	Replicates int
	// Link attempts a hard link before falling back to copying.
	Link bool
	// CaptureLog redirects child process output to run.log in Dir.
	CaptureLog bool

	deps  []Runner
	state atomic.Int32
	once  sync.Once
	err   error
}

// Runner is the capability interface run variants implement.
type Runner interface {
	// Base exposes the shared record.
	Base() *Run
	// Prepare materializes the working directory, stages inputs, and
	// renders the run script. Idempotent: re-invoking overwrites the
	// script and re-links inputs.
	Prepare() error
	// Command returns the engine arguments for this run (binary excluded).
	Command() []string
}

// Base returns the shared record; it makes *Run usable through embedding.
func (r *Run) Base() *Run { return r }

// State returns the current lifecycle state.
func (r *Run) State() State { return State(r.state.Load()) }

// Err returns the terminal error, if the run failed.
func (r *Run) Err() error { return r.err }

// Deps returns the runs this run depends on.
func (r *Run) Deps() []Runner { return r.deps }

// DependOn records a dependency.
func (r *Run) DependOn(dep Runner) { r.deps = append(r.deps, dep) }

// MarkSucceeded sets the terminal Succeeded state. First caller wins.
func (r *Run) MarkSucceeded() {
	r.once.Do(func() { r.state.Store(int32(Succeeded)) })
}

// MarkFailed sets the terminal Failed state with its cause. First caller
// wins.
func (r *Run) MarkFailed(err error) {
	r.once.Do(func() {
		r.err = err
		r.state.Store(int32(Failed))
	})
}

// markPrepared promotes Pending to Prepared without touching terminal
// states.
func (r *Run) markPrepared() {
	r.state.CompareAndSwap(int32(Pending), int32(Prepared))
}

// DepsSucceeded reports whether every dependency reached Succeeded.
func (r *Run) DepsSucceeded() bool {
	for _, d := range r.deps {
		if d.Base().State() != Succeeded {
			return false
		}
	}
	return true
}

// ensureDir creates the working directory. Already-existing directories
// are fine; any other failure is a DirectoryError.
func (r *Run) ensureDir() error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil && !os.IsExist(err) {
		return errdefs.Directory(fmt.Sprintf("cannot create run directory %s", r.Dir), err)
	}
	return nil
}

// stageInputs links or copies inputs into the run directory. Missing
// dependency-produced inputs are tolerated until the dependency has
// succeeded; the scheduler re-stages right before submission.
func (r *Run) stageInputs() error {
	depsDone := r.DepsSucceeded()
	for _, in := range r.Inputs {
		if _, err := os.Stat(in.Path); err != nil {
			if in.FromDep && !depsDone {
				continue
			}
			return errdefs.IO(fmt.Sprintf("run %s: input %s unavailable", r.Name, in.Path), err)
		}
		dst := filepath.Join(r.Dir, filepath.Base(in.Path))
		if err := stageFile(in.Path, dst, r.Link); err != nil {
			return err
		}
	}
	return nil
}

// stageFile places src at dst, linking when requested and falling back to
// a plain copy on any link failure. Which one happened is a performance
// detail only.
func stageFile(src, dst string, link bool) error {
	_ = os.Remove(dst)
	if link {
		if err := os.Link(src, dst); err == nil {
			return nil
		}
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errdefs.IO(fmt.Sprintf("cannot open %s", src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errdefs.IO(fmt.Sprintf("cannot create %s", dst), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot copy %s", src), err)
	}
	return out.Close()
}

// writeScript renders the template and writes the run script.
func (r *Run) writeScript(input, mutations string) error {
	rendered := RenderTemplate(r.Template, input, fmt.Sprintf("%d", r.Replicates), mutations)
	path := filepath.Join(r.Dir, TemplateFileName)
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return errdefs.IO(fmt.Sprintf("run %s: cannot write run script", r.Name), err)
	}
	return nil
}

// inputBasenames joins the staged input file names for the {INPUT}
// placeholder.
func (r *Run) inputBasenames() string {
	names := make([]string, len(r.Inputs))
	for i, in := range r.Inputs {
		names[i] = filepath.Base(in.Path)
	}
	return strings.Join(names, ",")
}
