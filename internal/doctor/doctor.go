// Package doctor validates devdeck configuration and the host toolchain.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattjoyce/devdeck/internal/auth"
	"github.com/mattjoyce/devdeck/internal/config"
	"github.com/mattjoyce/devdeck/internal/detect"
	"github.com/mattjoyce/devdeck/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Projects int     `json:"projects"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the local machine.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	fsCheck  func(string) error
}

// New creates a Doctor for cfg. Executables are resolved on PATH.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, fsCheck: storage.CheckLocalFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateScan(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.validateLogs(r)
	d.validateState(r)
	d.warnDeprecatedSyntax(r)
	d.warnMissingToolchain(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	switch d.cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q", d.cfg.Service.LogLevel))
	}
}

// validateScan checks the scan root and counts the projects it holds.
func (d *Doctor) validateScan(r *Result) {
	root := d.cfg.Scan.Root
	if root == "" {
		d.addError(r, "scan", "scan.root", "scan.root is required")
		return
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		d.addError(r, "scan", "scan.root", fmt.Sprintf("scan root %s is not readable: %v", root, err))
		return
	}

	excluded := make(map[string]bool, len(d.cfg.Scan.Exclude))
	for _, name := range d.cfg.Scan.Exclude {
		if excluded[name] {
			d.addWarning(r, "scan", "scan.exclude", fmt.Sprintf("%q is listed more than once", name))
		}
		excluded[name] = true
	}

	for _, e := range entries {
		if !e.IsDir() || excluded[e.Name()] {
			continue
		}
		if _, ok := detect.Detect(filepath.Join(root, e.Name())); ok {
			r.Projects++
		}
	}
	if r.Projects == 0 {
		d.addWarning(r, "scan", "scan.root", fmt.Sprintf("no projects found under %s", root))
	}
	if d.cfg.Scan.Watch && d.cfg.Scan.Debounce <= 0 {
		d.addError(r, "scan", "scan.debounce", "debounce must be positive when watch is enabled")
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	listen := d.cfg.API.Listen
	if listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required")
		return
	}
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", listen, err))
		return
	}
	if !isLoopback(host) && !d.cfg.API.Auth.Enabled() {
		d.addWarning(r, "api", "api.auth",
			fmt.Sprintf("listening on %s without authentication; anyone on the network can start processes", listen))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
		for j, scope := range token.Scopes {
			if !auth.KnownScope(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected projects:ro, projects:rw, logs:ro, events:ro or *)", scope))
			}
		}
	}
}

func (d *Doctor) validateLogs(r *Result) {
	if d.cfg.Logs.Capacity <= 0 {
		d.addError(r, "logs", "logs.capacity", "capacity must be positive")
	}
	if d.cfg.Logs.PollInterval <= 0 {
		d.addError(r, "logs", "logs.poll_interval", "poll_interval must be positive")
	}
}

func (d *Doctor) validateState(r *Result) {
	if !d.cfg.State.History {
		return
	}
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required when history is enabled")
		return
	}
	if err := d.fsCheck(d.cfg.State.Path); err != nil {
		if errors.Is(err, storage.ErrNetworkFilesystem) {
			d.addError(r, "state", "state.path", err.Error())
			return
		}
		d.addWarning(r, "state", "state.path", fmt.Sprintf("cannot check filesystem: %v", err))
	}
}

func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
}

// warnMissingToolchain flags launchers that are not on PATH. Python
// projects with a virtualenv use its own binaries, so this is only a warning.
func (d *Doctor) warnMissingToolchain(r *Result) {
	tools := map[string]string{
		"toolchain.npm":     d.cfg.Toolchain.NPM,
		"toolchain.python":  d.cfg.Toolchain.Python,
		"toolchain.uvicorn": d.cfg.Toolchain.Uvicorn,
	}
	fields := make([]string, 0, len(tools))
	for field := range tools {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		name := tools[field]
		if name == "" {
			continue
		}
		if _, err := d.lookPath(name); err != nil {
			d.addWarning(r, "toolchain", field, fmt.Sprintf("%q not found on PATH", name))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		fmt.Fprintf(&b, "Configuration valid. %d project(s) found.\n", r.Projects)
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s)). %d project(s) found.\n", len(r.Warnings), r.Projects)
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
