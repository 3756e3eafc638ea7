// Package config loads scribe's layered JSONC configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	RepoPath      string `json:"repo_path,omitempty"`
	Catalog       string `json:"catalog,omitempty"`
	WorkDir       string `json:"work_dir,omitempty"`
	AutosaveDelay string `json:"autosave_delay,omitempty"`
	HistoryFile   string `json:"history_file,omitempty"`

	// Resolved values (computed, not serialized)
	EffectiveCwd   string        `json:"-"`
	RepoPathAbs    string        `json:"-"` // empty when no repository is configured
	CatalogAbs     string        `json:"-"`
	WorkDirAbs     string        `json:"-"`
	HistoryFileAbs string        `json:"-"`
	Autosave       time.Duration `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Catalog:       "documents.json",
		WorkDir:       "work",
		AutosaveDelay: "2s",
	}
}

// FileName is the project config file name.
const FileName = ".scribe.json"

// Keys lists the keys accepted in config files and by [Set].
var Keys = []string{"repo_path", "catalog", "work_dir", "autosave_delay", "history_file"}

// GlobalPath returns the path of the global config file:
// $XDG_CONFIG_HOME/scribe/config.json, falling back to the platform config
// directory when the variable is not in env.
func GlobalPath(env map[string]string) string {
	if dir := env["XDG_CONFIG_HOME"]; dir != "" {
		return filepath.Join(dir, "scribe", "config.json")
	}

	if xdg.ConfigHome == "" {
		return ""
	}

	return filepath.Join(xdg.ConfigHome, "scribe", "config.json")
}

func defaultHistoryPath(env map[string]string) string {
	if dir := env["XDG_STATE_HOME"]; dir != "" {
		return filepath.Join(dir, "scribe", "history")
	}

	return filepath.Join(xdg.StateHome, "scribe", "history")
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	RepoOverride    string            // --repo flag value; empty means no override
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/scribe/config.json)
// 3. Project config file (.scribe.json, if exists)
// 4. Explicit config file via ConfigPath (replaces the project file)
// 5. CLI overrides.
//
// Relative paths in config files are resolved against the working
// directory, except catalog which is relative to the repository.
func Load(input LoadInput) (Config, error) {
	cwd := input.WorkDirOverride
	if cwd == "" {
		var err error

		cwd, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg := Default()

	if path := GlobalPath(input.Env); path != "" {
		globalCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, globalCfg)
		}
	}

	projectPath, mustExist := filepath.Join(cwd, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = absFrom(cwd, input.ConfigPath), true
	}

	projectCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, projectCfg)
	}

	if input.RepoOverride != "" {
		cfg.RepoPath = input.RepoOverride
	}

	return resolve(cfg, cwd, input.Env)
}

func resolve(cfg Config, cwd string, env map[string]string) (Config, error) {
	if cfg.WorkDir == "" {
		return Config{}, ErrWorkDirEmpty
	}

	if cfg.Catalog == "" {
		return Config{}, ErrCatalogEmpty
	}

	delay, err := time.ParseDuration(cfg.AutosaveDelay)
	if err != nil || delay <= 0 {
		return Config{}, fmt.Errorf("%w: %q", ErrAutosaveDelay, cfg.AutosaveDelay)
	}

	cfg.EffectiveCwd = cwd
	cfg.Autosave = delay
	cfg.WorkDirAbs = absFrom(cwd, cfg.WorkDir)

	catalogBase := cwd
	if cfg.RepoPath != "" {
		cfg.RepoPathAbs = absFrom(cwd, cfg.RepoPath)
		catalogBase = cfg.RepoPathAbs
	}

	cfg.CatalogAbs = absFrom(catalogBase, cfg.Catalog)

	if cfg.HistoryFile != "" {
		cfg.HistoryFileAbs = absFrom(cwd, cfg.HistoryFile)
	} else {
		cfg.HistoryFileAbs = defaultHistoryPath(env)
	}

	return cfg, nil
}

func absFrom(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(base, path)
}

// loadFile loads a config file. If mustExist is false, a missing file
// returns a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(standardized, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// Explicit empty values would silently fall back to defaults in merge.
	for _, key := range []string{"catalog", "work_dir", "autosave_delay"} {
		if v, ok := raw[key]; ok && string(v) == `""` {
			return Config{}, fmt.Errorf("%s cannot be empty", key)
		}
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.RepoPath != "" {
		base.RepoPath = overlay.RepoPath
	}

	if overlay.Catalog != "" {
		base.Catalog = overlay.Catalog
	}

	if overlay.WorkDir != "" {
		base.WorkDir = overlay.WorkDir
	}

	if overlay.AutosaveDelay != "" {
		base.AutosaveDelay = overlay.AutosaveDelay
	}

	if overlay.HistoryFile != "" {
		base.HistoryFile = overlay.HistoryFile
	}

	return base
}
