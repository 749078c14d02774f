package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/run"
)

// RunLogFileName captures child process output inside the run directory.
const RunLogFileName = "run.log"

// spawn starts the engine as a child process in its own process group
// inside the run directory and waits for it to exit. Cancellation sends
// SIGTERM to the whole group, then SIGKILL after the grace period, so
// grandchildren spawned by the engine are caught too.
func (s *Scheduler) spawn(ctx context.Context, r run.Runner) error {
	base := r.Base()

	runCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.Command(s.cfg.Binary, r.Command()...)
	cmd.Dir = base.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if base.CaptureLog {
		logFile, err := os.Create(filepath.Join(base.Dir, RunLogFileName))
		if err != nil {
			return errdefs.IO(fmt.Sprintf("run %s: cannot create run log", base.Name), err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return errdefs.Configuration(fmt.Sprintf("cannot start engine %s", s.cfg.Binary), err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return errdefs.RunFailure(fmt.Sprintf("run %s: engine %v", base.Name, err), err)
		}
		return nil
	case <-runCtx.Done():
		s.terminate(cmd, done)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return errdefs.RunFailure(fmt.Sprintf("run %s: timed out after %s", base.Name, s.cfg.Timeout), runCtx.Err())
		}
		return errdefs.RunFailure(fmt.Sprintf("run %s: canceled", base.Name), runCtx.Err())
	}
}

// terminate signals the child's process group and waits for it to exit,
// escalating to SIGKILL after the grace period.
func (s *Scheduler) terminate(cmd *exec.Cmd, done chan error) {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(s.cfg.GracePeriod):
	}

	_ = syscall.Kill(pgid, syscall.SIGKILL)
	<-done
}
