package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndCompleteScan(t *testing.T) {
	s := openTestStore(t)

	scan, err := s.CreateScan("mutation", []string{"model1.pdb", "model2.pdb"}, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, scan.ID)
	assert.Equal(t, ScanStatusRunning, scan.Status)

	require.NoError(t, s.CompleteScan(scan.ID, ScanStatusCompleted, ""))

	got, err := s.GetScan(scan.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCompleted, got.Status)
	assert.Equal(t, []string{"model1.pdb", "model2.pdb"}, got.Structures)
	assert.Equal(t, 3, got.Replicates)
	assert.NotNil(t, got.CompletedAt)
}

func TestCompleteScanWithError(t *testing.T) {
	s := openTestStore(t)

	scan, err := s.CreateScan("self", []string{"m.pdb"}, 1)
	require.NoError(t, err)
	require.NoError(t, s.CompleteScan(scan.ID, ScanStatusFailed, "repair phase failed"))

	got, err := s.GetScan(scan.ID)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusFailed, got.Status)
	assert.Equal(t, "repair phase failed", got.Error)
}

func TestGetScanNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetScan("nope")
	assert.Error(t, err)
}

func TestRecordAndListRuns(t *testing.T) {
	s := openTestStore(t)

	scan, err := s.CreateScan("mutation", []string{"m.pdb"}, 2)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(scan.ID, RunOutcome{Name: "repair_m", Kind: "repair", State: "succeeded"}))
	require.NoError(t, s.RecordRun(scan.ID, RunOutcome{Name: "m_GA104", Kind: "mutate", State: "failed", Error: "exit status 1"}))

	runs, err := s.ListRuns(scan.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Name order.
	assert.Equal(t, "m_GA104", runs[0].Name)
	assert.Equal(t, "exit status 1", runs[0].Error)
	assert.Equal(t, "repair_m", runs[1].Name)
}

func TestRecordRunUpsertsByName(t *testing.T) {
	s := openTestStore(t)

	scan, err := s.CreateScan("mutation", []string{"m.pdb"}, 2)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(scan.ID, RunOutcome{Name: "m_GA104", Kind: "mutate", State: "prepared"}))
	require.NoError(t, s.RecordRun(scan.ID, RunOutcome{Name: "m_GA104", Kind: "mutate", State: "succeeded"}))

	runs, err := s.ListRuns(scan.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "succeeded", runs[0].State)
}
