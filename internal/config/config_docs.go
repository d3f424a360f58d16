package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// [Render] uses FieldDoc values to annotate config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "loop.period") to their
// [FieldDoc] entries. Section paths such as "loop" document the table itself.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Loop ─────────────────────────────────────────────────────
	"loop": {
		Comment: "The event loop waits on ticks and interrupts. An interrupt always wins.",
	},
	"loop.period": {
		Comment: "Time between periodic ticks (Go duration syntax).",
		Alternatives: []string{
			`period = "250ms"`,
		},
	},
	"loop.interrupt_capacity": {
		Comment: "Maximum queued interrupts. Further interrupts are dropped until the loop drains them.",
	},
	"loop.timeout": {
		Comment: "Request shutdown after this long, as if interrupted. \"0s\" waits forever.",
		Alternatives: []string{
			`timeout = "30s"`,
		},
	},
	"loop.farewell": {
		Comment: "Printed on its own line after the loop stops.",
	},

	// ── Work ─────────────────────────────────────────────────────
	"work": {
		Comment: "What to do on every tick.",
	},
	"work.kind": {
		Comment: "Options: \"print\", \"probe\", \"none\"\n  print: write message to stdout\n  probe: GET url and log failures\n  none:  only count ticks",
		Alternatives: []string{
			`kind = "probe"`,
		},
	},
	"work.message": {
		Comment: "Line written by the print work unit.",
	},
	"work.url": {
		Comment: "Endpoint for the probe work unit.",
		Alternatives: []string{
			`url = "http://127.0.0.1:8080/healthz"`,
		},
	},
	"work.retry_max": {
		Comment: "Retries after a failed probe (connection errors and 5xx responses).",
	},
	"work.request_timeout": {
		Comment: "Timeout for a single probe attempt.",
	},

	// ── Watch ────────────────────────────────────────────────────
	"watch": {
		Comment: "File changes as an extra tick source.",
	},
	"watch.enabled": {},
	"watch.paths": {
		Comment: "Files or directories to watch. Relative paths resolve against the data directory.",
		Alternatives: []string{
			`paths = ["inbox"]`,
		},
	},
	"watch.include": {
		Comment: "Only changes matching one of these globs count. Empty matches everything.",
		Alternatives: []string{
			`include = ["**/*.toml"]`,
		},
	},
	"watch.exclude": {
		Comment: "Changes matching any of these globs are ignored.",
		Alternatives: []string{
			`exclude = ["**/*.tmp.*"]`,
		},
	},
	"watch.poll_interval": {
		Comment: "Stat interval when native file notifications are unavailable.",
	},

	// ── Control ──────────────────────────────────────────────────
	"control": {
		Comment: "Local endpoint used by \"sigloop stop\".",
	},
	"control.enabled": {},
	"control.address": {
		Comment: "Socket path or pipe name. Default: sigloop.sock in the data directory\n(\\\\.\\pipe\\sigloop-<user> on Windows).",
		Alternatives: []string{
			`address = "/run/user/1000/sigloop.sock"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.file": {
		Comment: "Log file, relative to the data directory. \"-\" logs to stderr.",
		Alternatives: []string{
			`file = "-"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
