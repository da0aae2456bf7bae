package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/devdeck/internal/config"
	"github.com/mattjoyce/devdeck/internal/storage"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	app := filepath.Join(root, "app-a")
	if err := os.MkdirAll(app, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(app, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.Defaults()
	cfg.Scan.Root = root
	cfg.State.Path = filepath.Join(t.TempDir(), "devdeck.db")
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	d.fsCheck = func(string) error { return nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
	if r.Projects != 1 {
		t.Errorf("Projects = %d, want 1", r.Projects)
	}
}

func TestValidate_MissingRoot(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Scan.Root = filepath.Join(t.TempDir(), "missing")
	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "scan", "not readable")
}

func TestValidate_EmptyRootWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Scan.Root = t.TempDir()
	r := newDoctor(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "scan", "no projects found")
}

func TestValidate_ExcludedProjectsNotCounted(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Scan.Exclude = []string{"app-a", "app-a"}
	r := newDoctor(cfg).Validate()
	if r.Projects != 0 {
		t.Errorf("Projects = %d, want 0", r.Projects)
	}
	assertHasWarning(t, r, "scan", "more than once")
}

func TestValidate_BadListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Listen = "not-an-address"
	r := newDoctor(cfg).Validate()
	assertHasError(t, r, "api", "invalid listen address")
}

func TestValidate_PublicListenWithoutAuthWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Listen = "0.0.0.0:8765"
	r := newDoctor(cfg).Validate()
	assertHasWarning(t, r, "api", "without authentication")

	cfg.API.Auth.APIKey = "secret"
	r = newDoctor(cfg).Validate()
	for _, w := range r.Warnings {
		if w.Category == "api" {
			t.Fatalf("unexpected api warning with auth enabled: %v", w)
		}
	}
}

func TestValidate_LoopbackListenIsQuiet(t *testing.T) {
	t.Parallel()
	for _, listen := range []string{"127.0.0.1:1", "localhost:8765", "[::1]:8765"} {
		cfg := validConfig(t)
		cfg.API.Listen = listen
		r := newDoctor(cfg).Validate()
		if len(r.Warnings) != 0 {
			t.Errorf("%s: unexpected warnings %v", listen, r.Warnings)
		}
	}
}

func TestValidate_TokenScopes(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.Tokens = []config.APIToken{
		{Token: "ok", Scopes: []string{"projects:rw", "logs:ro"}},
		{Token: "bad", Scopes: []string{"jobs:ro"}},
		{Token: "", Scopes: []string{"*"}},
	}
	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "token_scopes", `unknown scope "jobs:ro"`)
	assertHasError(t, r, "token_scopes", "token value is empty")
	if len(r.Errors) != 2 {
		t.Errorf("expected 2 errors, got %v", r.Errors)
	}
}

func TestValidate_LogsBounds(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Logs.Capacity = 0
	cfg.Logs.PollInterval = -1
	r := newDoctor(cfg).Validate()
	assertHasError(t, r, "logs", "capacity")
	assertHasError(t, r, "logs", "poll_interval")
}

func TestValidate_NetworkStateIsError(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	d := newDoctor(cfg)
	d.fsCheck = func(path string) error {
		return fmt.Errorf("%w: %q is on \"nfs\"", storage.ErrNetworkFilesystem, path)
	}
	r := d.Validate()
	assertHasError(t, r, "state", "network filesystem")

	d.fsCheck = func(string) error { return errors.New("statfs failed") }
	r = d.Validate()
	if !r.Valid {
		t.Fatalf("detector failure should only warn, got %v", r.Errors)
	}
	assertHasWarning(t, r, "state", "statfs failed")
}

func TestValidate_StateIgnoredWithoutHistory(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.State.History = false
	cfg.State.Path = ""
	d := newDoctor(cfg)
	d.fsCheck = func(string) error {
		t.Fatal("fsCheck should not run with history disabled")
		return nil
	}
	if r := d.Validate(); !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}
}

func TestValidate_WarnMissingToolchain(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	d := newDoctor(cfg)
	d.lookPath = func(name string) (string, error) {
		if name == "uvicorn" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + name, nil
	}
	r := d.Validate()
	if !r.Valid {
		t.Fatalf("missing toolchain should only warn, got %v", r.Errors)
	}
	assertHasWarning(t, r, "toolchain", `"uvicorn" not found`)
	if len(r.Warnings) != 1 {
		t.Errorf("expected exactly one warning, got %v", r.Warnings)
	}
}

func TestValidate_WarnBothAPIKeyAndTokens(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.APIKey = "legacy"
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "t", Scopes: []string{"*"}}}
	r := newDoctor(cfg).Validate()
	assertHasWarning(t, r, "deprecated", "both")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: false, Errors: []Issue{{Category: "scan", Field: "scan.root", Message: "bad"}}}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": false`) || !strings.Contains(out, `"field": "scan.root"`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true, Projects: 3})
	if out != "Configuration valid. 3 project(s) found.\n" {
		t.Errorf("FormatHuman() = %q", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "api", Field: "api.listen", Message: "required"}},
		Warnings: []Issue{{Category: "scan", Message: "empty"}},
	})
	for _, want := range []string{"invalid (1 error(s), 1 warning(s))", "ERROR [api] api.listen: required", "WARN  [scan] empty"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
