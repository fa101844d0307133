// Command datamapper manages tables declared in a metadata file: it lists
// them, applies SQL migrations, prints rows and moves table contents to and
// from the snapshot archive.
//
//	datamapper -declarations entities.json tables
//	datamapper -declarations entities.json migrate
//	datamapper -declarations entities.json select -table children -where parent=1
//	datamapper -declarations entities.json export -key nightly.json
//	datamapper -declarations entities.json import -key nightly.json
//
// Backends are selected through the DATAMAPPER_* environment variables read
// by core.OpenPersister and archive.Open.
package main

import (
	"context"
	"datamapper/pkg/metadata"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var exitFunc = os.Exit

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = []command{
	{name: "tables", summary: "list declared tables", run: runTables},
	{name: "migrate", summary: "apply pending SQL schema migrations", run: runMigrate},
	{name: "select", summary: "print rows of a table as JSON lines", run: runSelect},
	{name: "export", summary: "write every table to a snapshot in the archive", run: runExport},
	{name: "import", summary: "insert the rows of an archived snapshot", run: runImport},
}

// environment carries what every subcommand needs.
type environment struct {
	registry *metadata.Registry
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("datamapper", flag.ContinueOnError)
	fs.SetOutput(stderr)
	declarations := fs.String("declarations", os.Getenv("DATAMAPPER_DECLARATIONS"), "path to the entity declaration file")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr, fs)
		return 2
	}
	cmd, ok := lookup(rest[0])
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		usage(stderr, fs)
		return 2
	}
	logger := newLogger(stderr, os.Getenv("DATAMAPPER_LOG_LEVEL"))
	registry, err := loadRegistry(*declarations)
	if err != nil {
		logger.Error("load declarations", "path", *declarations, "error", err)
		return 1
	}
	env := &environment{registry: registry, logger: logger, stdout: stdout, stderr: stderr}
	if err := cmd.run(ctx, env, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		logger.Error(cmd.name+" failed", "error", err)
		return 1
	}
	return 0
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "usage: datamapper [-declarations file] <command> [flags]")
	_, _ = fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

// newLogger returns a text logger at the named level. Unknown levels fall
// back to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil || level == "" {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func loadRegistry(path string) (reg *metadata.Registry, err error) {
	if path == "" {
		return nil, errors.New("no declaration file given (-declarations or DATAMAPPER_DECLARATIONS)")
	}
	f, err := os.Open(path) // #nosec G304: operator supplied path
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reg = metadata.NewRegistry()
	if err := reg.LoadJSON(f); err != nil {
		return nil, err
	}
	return reg, nil
}
