package workdir

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDirIsDeterministic(t *testing.T) {
	m := New("/work/scan1", nil)
	assert.Equal(t, filepath.Join("/work/scan1", "repair_model1"), m.RunDir("repair_model1"))
	assert.Equal(t, m.RunDir("x"), m.RunDir("x"))
}

func TestEnsureBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "work")
	m := New(base, nil)
	require.NoError(t, m.EnsureBase())
	// Second call on an existing directory is fine.
	require.NoError(t, m.EnsureBase())
	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCleanIntermediateKeepsOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"model1.pdb", "model1_1.pdb", "Dif_x.fxout", "run.log", "runscript.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	m := New(dir, nil)
	require.NoError(t, m.CleanIntermediate(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"Dif_x.fxout", "run.log", "runscript.txt"}, names)
}

func TestArchiveReplacesDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "repair_model1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dif_x.fxout"), []byte("a_1.pdb\t1.0\n"), 0o644))

	m := New(base, nil)
	require.NoError(t, m.Archive(dir))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	f, err := os.Open(dir + ".tar.gz")
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var members []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		members = append(members, hdr.Name)
	}
	assert.Contains(t, members, filepath.Join("repair_model1", "Dif_x.fxout"))
}
