package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/structbio/ddgscan/internal/errdefs"
	"github.com/structbio/ddgscan/internal/mutation"
	"github.com/structbio/ddgscan/internal/structure"
)

// ManifestFileName is written at the results root after every scan.
const ManifestFileName = "manifest.yaml"

// Manifest describes what a scan computed, for later inspection of a
// results tree without the history database.
type Manifest struct {
	ScanID     string    `yaml:"scan_id,omitempty"`
	Mode       string    `yaml:"mode"`
	Engine     string    `yaml:"engine"`
	Structures []string  `yaml:"structures"`
	Positions  int       `yaml:"positions"`
	Targets    []string  `yaml:"targets,omitempty"`
	Replicates int       `yaml:"replicates"`
	Workers    int       `yaml:"workers"`
	Labels     int       `yaml:"labels"`
	Skipped    []string  `yaml:"skipped,omitempty"`
	WrittenAt  time.Time `yaml:"written_at"`
}

func (p *Pipeline) writeManifest(scanID string, structures []*structure.Structure, model *mutation.Model, summary *Summary) error {
	names := make([]string, len(structures))
	for i, s := range structures {
		names[i] = s.Name
	}

	m := Manifest{
		ScanID:     scanID,
		Mode:       p.mode(),
		Engine:     p.cfg.EngineBinary,
		Structures: names,
		Positions:  len(model.Positions),
		Targets:    model.Targets,
		Replicates: p.cfg.Replicates,
		Workers:    p.cfg.Workers,
		Labels:     summary.Labels,
		Skipped:    summary.Skipped,
		WrittenAt:  time.Now().UTC(),
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(p.cfg.ResultsDir, 0o755); err != nil && !os.IsExist(err) {
		return errdefs.Directory(fmt.Sprintf("cannot create results directory %s", p.cfg.ResultsDir), err)
	}
	path := filepath.Join(p.cfg.ResultsDir, ManifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errdefs.IO(fmt.Sprintf("cannot write manifest %s", path), err)
	}
	return nil
}
