// Package config loads ddgscan configuration from defaults, the
// ddgscan.yaml project file, DDGSCAN_ environment variables, and CLI
// flags, in ascending precedence.
package config

// EngineConfig describes the external energy engine.
type EngineConfig struct {
	// Binary is the engine executable; bare names are resolved via PATH.
	Binary string `koanf:"binary"`
	// Template paths; empty selects the built-in default template.
	RepairTemplate    string `koanf:"repair_template"`
	MutateTemplate    string `koanf:"mutate_template"`
	InterfaceTemplate string `koanf:"interface_template"`
	// TimeoutSeconds per engine process; zero means none.
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// Config holds all CLI configuration options.
type Config struct {
	WorkDir     string       `koanf:"work_dir"`
	ResultsDir  string       `koanf:"results_dir"`
	HistoryPath string       `koanf:"history_path"`
	Workers     int          `koanf:"workers"`
	Replicates  int          `koanf:"replicates"`
	Link        bool         `koanf:"link"`
	Keep        bool         `koanf:"keep"`
	Archive     bool         `koanf:"archive"`
	CaptureLog  bool         `koanf:"capture_log"`
	Verbose     bool         `koanf:"verbose"`
	Engine      EngineConfig `koanf:"engine"`

	// ProjectRoot is the directory the config file was found in (or the
	// CWD); relative paths resolve against it.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultWorkDir     = "work"
	DefaultResultsDir  = "results"
	DefaultHistoryFile = ".ddgscan/history.db"
	DefaultWorkers     = 4
	DefaultReplicates  = 3
)
