package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/tinytelemetry/canopy/internal/model"
)

type cliEnv struct {
	t      *testing.T
	dbPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &cliEnv{t: t, dbPath: filepath.Join(t.TempDir(), "canopy.duckdb")}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db-path", e.dbPath, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("canopy %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliEnv) list() []model.Template {
	e.t.Helper()
	var rows []model.Template
	if err := json.Unmarshal([]byte(e.mustRun("templates", "list", "-o", "json")), &rows); err != nil {
		e.t.Fatalf("decode list: %v", err)
	}
	return rows
}

func TestTemplatesBootstrapAndList(t *testing.T) {
	env := newCLIEnv(t)

	if out := env.mustRun("templates", "bootstrap"); !strings.Contains(out, "inserted 3") {
		t.Fatalf("bootstrap output = %q", out)
	}
	if out := env.mustRun("templates", "bootstrap"); !strings.Contains(out, "nothing inserted") {
		t.Errorf("second bootstrap output = %q", out)
	}

	rows := env.list()
	if len(rows) != 3 {
		t.Fatalf("templates = %d, want 3", len(rows))
	}

	table := env.mustRun("templates", "list")
	for _, name := range []string{"Classic Monitoring", "Energy Analysis", "System Status"} {
		if !strings.Contains(table, name) {
			t.Errorf("table missing %q:\n%s", name, table)
		}
	}

	var found []model.Template
	out := env.mustRun("templates", "list", "-q", "energy", "-o", "json")
	if err := json.Unmarshal([]byte(out), &found); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(found) != 1 || found[0].Name != "Energy Analysis" {
		t.Errorf("search energy = %+v", found)
	}
}

func TestTemplatesMutations(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("templates", "bootstrap")
	rows := env.list()
	first := rows[0]
	id := func(t model.Template) string { return strconv.FormatInt(t.ID, 10) }

	out := env.mustRun("templates", "duplicate", id(first), "--name", "Mine")
	if !strings.HasPrefix(out, "created template ") {
		t.Errorf("duplicate output = %q", out)
	}

	out = env.mustRun("templates", "toggle", id(first))
	if !strings.Contains(out, "active=false") {
		t.Errorf("toggle output = %q", out)
	}

	env.mustRun("templates", "delete", id(first))
	after := env.list()
	if len(after) != 3 {
		t.Fatalf("after duplicate+delete = %d, want 3", len(after))
	}
	for _, r := range after {
		if r.ID == first.ID {
			t.Errorf("template %d still present", first.ID)
		}
	}

	if _, err := env.run("templates", "delete", "abc"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad id err = %v, want ErrInvalid", err)
	}
	if _, err := env.run("templates", "duplicate", "999"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing duplicate err = %v, want ErrNotFound", err)
	}
}

func TestTemplatesExportImport(t *testing.T) {
	src := newCLIEnv(t)
	src.mustRun("templates", "bootstrap")

	for _, ext := range []string{"yaml", "json", "toml"} {
		t.Run(ext, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "templates."+ext)
			exporter := &cliEnv{t: t, dbPath: src.dbPath}
			exporter.mustRun("templates", "export", "-o", file)

			dst := &cliEnv{t: t, dbPath: filepath.Join(t.TempDir(), "dst.duckdb")}
			out := dst.mustRun("templates", "import", file)
			if !strings.Contains(out, "created 3, skipped 0") {
				t.Fatalf("import output = %q", out)
			}
			out = dst.mustRun("templates", "import", file, "--skip-existing")
			if !strings.Contains(out, "created 0, skipped 3") {
				t.Errorf("re-import output = %q", out)
			}
			if got := len(dst.list()); got != 3 {
				t.Errorf("imported templates = %d, want 3", got)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "Version:    dev") {
		t.Errorf("version output = %q", out.String())
	}
}
