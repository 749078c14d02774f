package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey stores the logger in the command context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search
// for a config file.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking.
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// configExistsIn checks whether a ddgscan config file exists in dir.
func configExistsIn(dir string) string {
	for _, name := range []string{"ddgscan.yaml", "ddgscan.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRoot searches upward from startDir for a ddgscan config
// file; startDir itself is the fallback.
func findProjectRoot(startDir string) (root, cfgFile string) {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return dir, found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return startDir, ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and
// flags. Precedence (highest to lowest): flags > env > config file >
// defaults.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"work_dir":     DefaultWorkDir,
		"results_dir":  DefaultResultsDir,
		"history_path": DefaultHistoryFile,
		"workers":      DefaultWorkers,
		"replicates":   DefaultReplicates,
		"link":         true,
		"capture_log":  true,
		"verbose":      false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file: explicit path, or upward search from CWD.
	projectRoot, _ := os.Getwd()
	if projectRoot == "" {
		projectRoot = "."
	}
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	} else {
		projectRoot, cfgFile = findProjectRoot(projectRoot)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables: DDGSCAN_WORK_DIR -> work_dir,
	// DDGSCAN_ENGINE_BINARY -> engine.binary.
	if err := k.Load(env.Provider("DDGSCAN_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags: only explicitly set flags override, kebab-case mapped to
	// snake_case config keys.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "engine":
				return "engine.binary", posflag.FlagVal(flags, f)
			case "timeout":
				return "engine.timeout_seconds", posflag.FlagVal(flags, f)
			case "history":
				return "history_path", posflag.FlagVal(flags, f)
			case "config":
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal and resolve paths against the project root.
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot
	cfg.WorkDir = resolvePathRelativeTo(cfg.WorkDir, projectRoot)
	cfg.ResultsDir = resolvePathRelativeTo(cfg.ResultsDir, projectRoot)
	cfg.HistoryPath = resolvePathRelativeTo(cfg.HistoryPath, projectRoot)
	cfg.Engine.RepairTemplate = resolvePathRelativeTo(cfg.Engine.RepairTemplate, projectRoot)
	cfg.Engine.MutateTemplate = resolvePathRelativeTo(cfg.Engine.MutateTemplate, projectRoot)
	cfg.Engine.InterfaceTemplate = resolvePathRelativeTo(cfg.Engine.InterfaceTemplate, projectRoot)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// envKey maps DDGSCAN_* variable names to config keys. The engine_
// prefix addresses the nested engine section.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "DDGSCAN_"))
	if rest, ok := strings.CutPrefix(s, "engine_"); ok {
		return "engine." + rest
	}
	return s
}

// resolvePathRelativeTo resolves path against baseDir unless it is empty
// or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GetConfigFileUsed returns the path of the config file in effect, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration loaded by the last
// LoadConfig call.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key the root command stores the logger
// under; commands retrieve it without an import cycle with the cli
// package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the CLI logger: text handler on stderr, debug level
// when verbose.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
