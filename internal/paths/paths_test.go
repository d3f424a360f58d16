// Tests for data directory path construction and relative path resolution.

package paths

import (
	"path/filepath"
	"testing"
)

func TestDataDirPaths(t *testing.T) {
	root := filepath.Join("home", "user", DataDirRel)
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, PIDFile)},
		{"Config", d.Config(), filepath.Join(root, ConfigFile)},
		{"Log", d.Log(), filepath.Join(root, LogFile)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	d := DataDir{Root: root}
	abs := filepath.Join(root, "elsewhere", "x.log")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"stdio", StdioLog, StdioLog},
		{"absolute", abs, abs},
		{"relative", "watched", filepath.Join(root, "watched")},
		{"nested", filepath.Join("a", "b.txt"), filepath.Join(root, "a", "b.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Resolve(tt.in); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
