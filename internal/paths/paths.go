// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "sigloop.pid"
	ConfigFile = "config.toml"
	LogFile    = "sigloop.log"
	BinaryName = "sigloop"
	DataDirRel = ".sigloop" // relative to $HOME
)

// StdioLog is the log file value that selects stderr instead of a file.
const StdioLog = "-"

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID/instance lock file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the default log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Resolve returns p unchanged when absolute, otherwise joined to the data
// directory. Config values such as log.file and watch.paths use it.
func (d DataDir) Resolve(p string) string {
	if p == "" || p == StdioLog || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Root, p)
}
