// Package migrate upgrades versioned on-disk documents one schema version at
// a time.
package migrate

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Migration upgrades a document to Version from the version before it.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms the raw document.
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the migrations of one document kind. Each kind gets its own
// registry so that version numbers stay independent.
type Registry struct {
	// CurrentVersion is the version new documents are written at.
	CurrentVersion int

	mu         sync.Mutex
	migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{CurrentVersion: 2}

// Register adds m. It panics on a duplicate version or a version above
// CurrentVersion, both of which are programming errors.
func (r *Registry) Register(m Migration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration v%d is newer than current v%d", m.Version, r.CurrentVersion))
	}
	for _, existing := range r.migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (%q)", m.Version, m.Description))
		}
	}
	r.migrations = append(r.migrations, m)
	slices.SortFunc(r.migrations, func(a, b Migration) int { return a.Version - b.Version })
}

// Migrations returns a copy of the registered migrations in version order.
func (r *Registry) Migrations() []Migration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.migrations)
}

// NeedsMigration reports whether a document at fileVersion is out of date.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion < r.CurrentVersion
}

// Run upgrades data from fromVersion, applying every migration newer than
// it. It returns the upgraded data and the version reached. A document newer
// than CurrentVersion is rejected rather than silently downgraded.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	if fromVersion > r.CurrentVersion {
		return nil, fromVersion, fmt.Errorf("version %d is newer than supported version %d", fromVersion, r.CurrentVersion)
	}
	version := fromVersion
	for _, m := range r.Migrations() {
		if m.Version <= version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data, version = out, m.Version
	}
	return data, version, nil
}
