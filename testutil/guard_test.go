package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const testForbiddenImport = "some/forbidden/package"

type recordingT struct {
	msg string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package tmp\nimport \"fmt\"\nimport \""+testForbiddenImport+"\"\nfunc X() { fmt.Println() }\n")
	writeFile(t, dir, "main_test.go", "package tmp\nimport \"datamapper/internal/infra/persistence/memory\"\n")
	viols, err := directImportViolations(dir, func(p string) bool {
		return p == testForbiddenImport || InternalImportForbidden(p)
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], testForbiddenImport) {
		t.Fatalf("expected only the non-test violation, got %v", viols)
	}
	rec := &recordingT{}
	failIfDirectViolations(rec, "reason", viols)
	if !strings.Contains(rec.msg, "reason") {
		t.Fatalf("expected failure message, got %q", rec.msg)
	}
	AssertNoDirectImports(t, dir, func(p string) bool { return p == "os" }, "os is unused")
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })
	sqlPkg := &packages.Package{PkgPath: "database/sql"}
	repo := &packages.Package{PkgPath: "example/repo", Imports: map[string]*packages.Package{"database/sql": sqlPkg}}
	root := &packages.Package{PkgPath: "example/app", Imports: map[string]*packages.Package{
		"example/repo": repo,
		"database/sql": sqlPkg,
	}}
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }
	viols, err := transitiveDependencyViolations("example/app", StorageImportForbidden)
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if len(viols) != 1 || viols[0] != "database/sql" {
		t.Fatalf("expected database/sql once, got %v", viols)
	}
	rec := &recordingT{}
	failIfTransitiveViolations(rec, "no storage", viols)
	if !strings.Contains(rec.msg, "database/sql") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}

func TestPredicates(t *testing.T) {
	cases := map[string][2]bool{
		"datamapper/internal/query":            {true, false},
		"datamapper/internal/infra/archive/s3": {true, true},
		"github.com/jackc/pgx/v5/stdlib":       {false, true},
		"datamapper/pkg/domain":                {false, false},
	}
	for path, want := range cases {
		if got := InternalImportForbidden(path); got != want[0] {
			t.Fatalf("InternalImportForbidden(%s)=%v", path, got)
		}
		if got := StorageImportForbidden(path); got != want[1] {
			t.Fatalf("StorageImportForbidden(%s)=%v", path, got)
		}
	}
}
