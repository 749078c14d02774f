package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/run"
)

// fakeEngine writes a shell script standing in for the external engine.
func fakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func newTestRun(t *testing.T, work, name string) *run.RepairRun {
	t.Helper()
	src := filepath.Join(work, name+".pdb")
	require.NoError(t, os.WriteFile(src, []byte("ATOM\n"), 0o644))
	r := run.NewRepairRun(work, name, src, "pdb={INPUT}\n", false)
	require.NoError(t, r.Prepare())
	return r
}

func resultByName(results []Result, name string) (Result, bool) {
	for _, res := range results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

func TestExecuteAllSucceed(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "exit 0\n")

	var runs []run.Runner
	for _, n := range []string{"a", "b", "c"} {
		runs = append(runs, newTestRun(t, work, n))
	}

	s := New(Config{Binary: engine, Workers: 2})
	results := s.Execute(context.Background(), runs)

	require.Len(t, results, 3)
	for _, res := range results {
		assert.True(t, res.OK, res.Name)
	}
	for _, r := range runs {
		assert.Equal(t, run.Succeeded, r.Base().State())
	}
}

func TestExecuteEveryRunAppearsExactlyOnce(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "exit 0\n")

	var runs []run.Runner
	for i := 0; i < 12; i++ {
		runs = append(runs, newTestRun(t, work, "r"+strconv.Itoa(i)))
	}

	s := New(Config{Binary: engine, Workers: 4})
	results := s.Execute(context.Background(), runs)

	require.Len(t, results, len(runs))
	seen := make(map[string]int)
	for _, res := range results {
		seen[res.Name]++
	}
	for _, r := range runs {
		assert.Equal(t, 1, seen[r.Base().Name])
	}
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	work := t.TempDir()
	// Each invocation records its start and end in nanoseconds.
	engine := fakeEngine(t,
		"date +%s%N > start.txt\nsleep 0.2\ndate +%s%N > end.txt\n")

	const workers = 2
	var runs []run.Runner
	for i := 0; i < 6; i++ {
		runs = append(runs, newTestRun(t, work, "c"+strconv.Itoa(i)))
	}

	s := New(Config{Binary: engine, Workers: workers})
	results := s.Execute(context.Background(), runs)
	require.Len(t, results, 6)

	type event struct {
		at    int64
		delta int
	}
	var events []event
	for _, r := range runs {
		dir := r.Base().Dir
		start := readNanos(t, filepath.Join(dir, "start.txt"))
		end := readNanos(t, filepath.Join(dir, "end.txt"))
		events = append(events, event{start, 1}, event{end, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at == events[j].at {
			return events[i].delta < events[j].delta
		}
		return events[i].at < events[j].at
	})

	active, peak := 0, 0
	for _, e := range events {
		active += e.delta
		if active > peak {
			peak = active
		}
	}
	assert.LessOrEqual(t, peak, workers)
	assert.Positive(t, peak)
}

func readNanos(t *testing.T, path string) int64 {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	require.NoError(t, err)
	return v
}

func TestFailedDependencySkipsDependentWithoutSpawn(t *testing.T) {
	work := t.TempDir()
	// Fail whenever a "poison" marker is staged in the run directory.
	engine := fakeEngine(t, "test -f poison && exit 1\ntouch ran.txt\nexit 0\n")

	parent := newTestRun(t, work, "parent")
	require.NoError(t, os.WriteFile(filepath.Join(parent.Dir, "poison"), nil, 0o644))

	child := newTestRun(t, work, "child")
	child.DependOn(parent)

	s := New(Config{Binary: engine, Workers: 2})
	results := s.Execute(context.Background(), []run.Runner{parent, child})
	require.Len(t, results, 2)

	parentRes, ok := resultByName(results, "repair_parent")
	require.True(t, ok)
	assert.False(t, parentRes.OK)

	childRes, ok := resultByName(results, "repair_child")
	require.True(t, ok)
	assert.False(t, childRes.OK)
	assert.True(t, errdefs.IsKind(childRes.Err, errdefs.KindRunFailure))

	// The dependent was never submitted: no process artifact.
	_, err := os.Stat(filepath.Join(child.Dir, "ran.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestMidChainFailurePropagatesToLeaf(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "test -f poison && exit 1\ntouch ran.txt\nexit 0\n")

	// Three-level chain mirroring repair -> mutate -> interface; the
	// middle run fails, the leaf must be marked Failed without a spawn.
	root := newTestRun(t, work, "root")
	mid := newTestRun(t, work, "mid")
	mid.DependOn(root)
	leaf := newTestRun(t, work, "leaf")
	leaf.DependOn(mid)
	require.NoError(t, os.WriteFile(filepath.Join(mid.Dir, "poison"), nil, 0o644))

	s := New(Config{Binary: engine, Workers: 2})
	results := s.Execute(context.Background(), []run.Runner{root, mid, leaf})
	require.Len(t, results, 3)

	rootRes, ok := resultByName(results, "repair_root")
	require.True(t, ok)
	assert.True(t, rootRes.OK)

	midRes, ok := resultByName(results, "repair_mid")
	require.True(t, ok)
	assert.False(t, midRes.OK)

	leafRes, ok := resultByName(results, "repair_leaf")
	require.True(t, ok)
	assert.False(t, leafRes.OK)
	assert.True(t, errdefs.IsKind(leafRes.Err, errdefs.KindRunFailure))
	assert.Equal(t, run.Failed, leaf.State())

	_, err := os.Stat(filepath.Join(leaf.Dir, "ran.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDependencyGateOrdersExecution(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "date +%s%N > done.txt\nsleep 0.05\nexit 0\n")

	parent := newTestRun(t, work, "first")
	child := newTestRun(t, work, "second")
	child.DependOn(parent)

	s := New(Config{Binary: engine, Workers: 4})
	results := s.Execute(context.Background(), []run.Runner{child, parent})
	require.Len(t, results, 2)

	parentDone := readNanos(t, filepath.Join(parent.Dir, "done.txt"))
	childDone := readNanos(t, filepath.Join(child.Dir, "done.txt"))
	assert.Less(t, parentDone, childDone)
}

func TestCancellationReturnsPartialResults(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "sleep 30\nexit 0\n")

	var runs []run.Runner
	for i := 0; i < 3; i++ {
		runs = append(runs, newTestRun(t, work, "s"+strconv.Itoa(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	s := New(Config{Binary: engine, Workers: 2, GracePeriod: time.Second})
	start := time.Now()
	results := s.Execute(ctx, runs)

	// The batch returns promptly instead of waiting out the sleeps.
	assert.Less(t, time.Since(start), 10*time.Second)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.False(t, res.OK)
	}
}

func TestTimeoutMarksRunFailed(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "sleep 30\nexit 0\n")

	r := newTestRun(t, work, "slow")
	s := New(Config{Binary: engine, Workers: 1, Timeout: 200 * time.Millisecond, GracePeriod: time.Second})
	results := s.Execute(context.Background(), []run.Runner{r})

	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.True(t, errdefs.IsKind(results[0].Err, errdefs.KindRunFailure))
	assert.Contains(t, results[0].Err.Error(), "timed out")
}

func TestMissingBinaryFailsRun(t *testing.T) {
	work := t.TempDir()
	r := newTestRun(t, work, "x")

	s := New(Config{Binary: filepath.Join(work, "no-such-engine"), Workers: 1})
	results := s.Execute(context.Background(), []run.Runner{r})

	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.True(t, errdefs.IsKind(results[0].Err, errdefs.KindConfiguration))
}

func TestCaptureLogWritesRunLog(t *testing.T) {
	work := t.TempDir()
	engine := fakeEngine(t, "echo engine says hello\nexit 0\n")

	r := newTestRun(t, work, "logged")
	r.CaptureLog = true

	s := New(Config{Binary: engine, Workers: 1})
	results := s.Execute(context.Background(), []run.Runner{r})
	require.Len(t, results, 1)
	require.True(t, results[0].OK)

	content, err := os.ReadFile(filepath.Join(r.Dir, RunLogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(content), "engine says hello")
}
