package config

import "errors"

// Error variables for configuration loading and editing.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrWorkDirEmpty       = errors.New("work_dir cannot be empty")
	ErrCatalogEmpty       = errors.New("catalog cannot be empty")
	ErrAutosaveDelay      = errors.New("autosave_delay must be a positive duration")
	ErrUnknownKey         = errors.New("unknown config key")
)
