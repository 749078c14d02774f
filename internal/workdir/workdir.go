// Package workdir manages the scan working tree: deterministic run
// directory naming under one base, optional cleanup of intermediate
// structure files, and compression of finished run directories.
package workdir

import (
	"archive/tar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/structbio/ddgscan/internal/errdefs"
)

// Manager owns one scan's working tree.
type Manager struct {
	// Base is the working tree root; run directories are direct children.
	Base string

	logger *slog.Logger
}

// New creates a manager rooted at base.
func New(base string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{Base: base, logger: logger}
}

// EnsureBase creates the working tree root.
func (m *Manager) EnsureBase() error {
	if err := os.MkdirAll(m.Base, 0o755); err != nil && !os.IsExist(err) {
		return errdefs.Directory(fmt.Sprintf("cannot create working directory %s", m.Base), err)
	}
	return nil
}

// RunDir returns the deterministic directory for a run name.
func (m *Manager) RunDir(name string) string {
	return filepath.Join(m.Base, name)
}

// CleanIntermediate removes staged and generated structure files from a
// run directory, keeping the engine's numeric outputs and the run log.
func (m *Manager) CleanIntermediate(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errdefs.Directory(fmt.Sprintf("cannot clean run directory %s", dir), err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdb") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return errdefs.Directory(fmt.Sprintf("cannot remove %s", path), err)
		}
		m.logger.Debug("removed intermediate file", "path", path)
	}
	return nil
}

// Archive compresses a run directory into <dir>.tar.gz next to it and
// removes the directory.
func (m *Manager) Archive(dir string) error {
	out, err := os.Create(dir + ".tar.gz")
	if err != nil {
		return errdefs.IO(fmt.Sprintf("cannot create archive for %s", dir), err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	base := filepath.Base(dir)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.Join(base, rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return errdefs.IO(fmt.Sprintf("cannot archive %s", dir), err)
	}
	if err := tw.Close(); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot finish archive for %s", dir), err)
	}
	if err := gz.Close(); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot finish archive for %s", dir), err)
	}
	if err := out.Close(); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot finish archive for %s", dir), err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return errdefs.Directory(fmt.Sprintf("cannot remove archived directory %s", dir), err)
	}
	m.logger.Info("archived run directory", "archive", dir+".tar.gz")
	return nil
}
