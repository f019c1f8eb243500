// Command pseudokernel runs a wasm32 musl guest against the emulated kernel.
//
// Usage:
//
//	pseudokernel run [-trace] [-auto-stub] [-entry name] manifest.yaml
//	pseudokernel schema
//
// The process exits with the guest's return value or exit code, 134 when the
// guest aborted, 70 when it reached an unimplemented feature and 1 on a host
// error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/reglet-dev/pseudokernel/application/schema"
	kerrors "github.com/reglet-dev/pseudokernel/domain/errors"
	"github.com/reglet-dev/pseudokernel/host"
	plog "github.com/reglet-dev/pseudokernel/log"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

type command struct {
	name, desc string
	main       func(ctx context.Context, args []string, stdout, stderr io.Writer) int
}

var commands = []command{
	{"run", "run a guest described by a manifest", runCmd},
	{"schema", "print the manifest JSON schema", schemaCmd},
	{"version", "print version information", versionCmd},
}

func main() {
	os.Exit(dispatch(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func dispatch(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	usage := func() {
		fmt.Fprintln(stderr, "Commands:")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-8s %s\n", c.name, c.desc)
		}
		fmt.Fprintf(stderr, "\nExample: %s run -trace examples/hello.yaml\n", argv[0])
	}

	if len(argv) < 2 {
		usage()
		return 1
	}
	for _, c := range commands {
		if c.name == argv[1] {
			return c.main(ctx, argv[2:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "Command '%s' not found.\n\n", argv[1])
	usage()
	return 1
}

func runCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	trace := fs.Bool("trace", false, "log every syscall (implies -log-level debug)")
	autoStub := fs.Bool("auto-stub", false, "stub imports the host does not know instead of failing")
	entry := fs.String("entry", "", "exported function to invoke (default: manifest entry, then main)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	jsonLog := fs.Bool("json-log", false, "emit host diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: pseudokernel run [flags] manifest.yaml")
		return 1
	}

	level, err := parseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *trace {
		level = slog.LevelDebug
	}
	logger := plog.NewLogger(plog.WithWriter(stderr), plog.WithLevel(level), plog.WithJSON(*jsonLog))

	plan, err := host.NewLoader().LoadFile(fs.Arg(0))
	if err != nil {
		logger.Error("failed to load manifest", "error", err, "detail", kerrors.ToErrorDetail(err))
		return 1
	}
	if *trace {
		plan.Manifest.Trace = true
	}
	if *entry != "" {
		plan.Manifest.Entry = *entry
	}

	exec, err := host.NewExecutor(ctx,
		host.WithLogger(logger),
		host.WithSink(plog.NewWriterSink(stdout, stderr)),
		host.WithAutoStub(*autoStub),
	)
	if err != nil {
		logger.Error("failed to create executor", "error", err, "detail", kerrors.ToErrorDetail(err))
		return 1
	}
	defer exec.Close(ctx)

	outcome, err := exec.RunManifest(ctx, plan)
	if err != nil {
		logger.Error("run failed", "error", err, "detail", kerrors.ToErrorDetail(err))
		return 1
	}
	return outcome.ExitCode()
}

func schemaCmd(_ context.Context, _ []string, stdout, stderr io.Writer) int {
	b, err := schema.ManifestSchema()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(b))
	return 0
}

func versionCmd(_ context.Context, _ []string, stdout, _ io.Writer) int {
	fmt.Fprintf(stdout, "pseudokernel %s (%s)\n", Version, GitCommit)
	return 0
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
