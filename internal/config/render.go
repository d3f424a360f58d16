package config

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// ///////////////////////////////////////////////
// Annotated Rendering
// ///////////////////////////////////////////////

// Render encodes cfg as TOML annotated with [ConfigDocs]: comments above each
// documented key, commented alternatives below it, and documented keys the
// encoder omitted (empty omitempty fields) injected as comments at the end of
// their section.
func Render(cfg *Config) ([]byte, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	r := renderer{emitted: map[string]bool{}}
	r.lines = append(r.lines,
		"# ///////////////////////////////////////////////",
		"# Sigloop Configuration",
		"# ///////////////////////////////////////////////",
		"",
	)
	for _, line := range strings.Split(raw.String(), "\n") {
		r.line(strings.TrimSpace(line))
	}
	r.flushOmitted()

	return []byte(strings.TrimRight(strings.Join(r.lines, "\n"), "\n") + "\n"), nil
}

// renderer accumulates annotated output while tracking the current section.
type renderer struct {
	lines   []string
	section []string
	emitted map[string]bool
}

func (r *renderer) line(trimmed string) {
	switch {
	case trimmed == "":
		// Spacing is managed here, not by the encoder.
	case strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[["):
		r.flushOmitted()
		section := strings.Trim(trimmed, "[] ")
		r.section = parseSectionPath(section)
		r.lines = append(r.lines, "", fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
		r.comment(ConfigDocs[section].Comment)
		r.lines = append(r.lines, trimmed)
	case !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#"):
		r.lines = append(r.lines, trimmed)
	default:
		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		path := r.path(key)
		r.emitted[path] = true
		doc := ConfigDocs[path]
		r.comment(doc.Comment)
		r.lines = append(r.lines, trimmed)
		for _, alt := range doc.Alternatives {
			r.lines = append(r.lines, "# "+alt)
		}
	}
}

func (r *renderer) path(key string) string {
	if len(r.section) == 0 {
		return key
	}
	return strings.Join(r.section, ".") + "." + key
}

func (r *renderer) comment(text string) {
	if text == "" {
		return
	}
	for _, cl := range strings.Split(text, "\n") {
		r.lines = append(r.lines, "# "+cl)
	}
}

// flushOmitted appends documented keys of the current section that the
// encoder did not write, sorted for deterministic output.
func (r *renderer) flushOmitted() {
	if len(r.section) == 0 {
		return
	}
	prefix := strings.Join(r.section, ".") + "."

	var omitted []string
	for path := range ConfigDocs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || r.emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	slices.Sort(omitted)

	for _, path := range omitted {
		doc := ConfigDocs[path]
		r.lines = append(r.lines, "")
		r.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			r.lines = append(r.lines, "# "+alt)
		}
		r.emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header ("a.b") into segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the capitalized last segment of a section header.
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
