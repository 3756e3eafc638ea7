package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/internal/config"
	"github.com/calvinalkan/scribe/pkg/fs"
)

const helpFlag = "--help"

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. When a signal arrives the command context is cancelled;
// the session command then flushes and exits.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	out = &lockedWriter{w: out}
	errOut = &lockedWriter{w: errOut}

	if len(args) < 2 {
		printUsage(out, nil)

		return 0
	}

	globals, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, nil)

		return 1
	}

	if len(globals.remaining) == 0 || globals.remaining[0] == "-h" || globals.remaining[0] == helpFlag {
		printUsage(out, nil)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.workDir,
		ConfigPath:      globals.configPath,
		RepoOverride:    globals.repo,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a := &app{
		cfg:        cfg,
		configPath: globals.configPath,
		fsys:       fs.NewReal(),
		log:        newLogger(errOut, globals.verbose),
		in:         in,
	}

	commands := a.commands()

	name := globals.remaining[0]

	var cmd *Command

	for _, c := range commands {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, name))
		printUsage(errOut, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(out, errOut), globals.remaining[1:])
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type globalFlags struct {
	workDir    string
	configPath string
	repo       string
	verbose    bool
	remaining  []string
}

// parseGlobalFlags parses flags up to the command name. Everything after
// it belongs to the command.
func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags

	fset := flag.NewFlagSet("scribe", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	fset.SetInterspersed(false)
	fset.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fset.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	fset.StringVar(&g.repo, "repo", "", "Repository root (overrides repo_path)")
	fset.BoolVarP(&g.verbose, "verbose", "v", false, "Log autosave and file activity")

	help := fset.BoolP("help", "h", false, "Show help")

	err := fset.Parse(args)
	if err != nil {
		if strings.Contains(err.Error(), "needs an argument") {
			return globalFlags{}, fmt.Errorf("%w: %w", errFlagRequiresArg, err)
		}

		return globalFlags{}, err
	}

	g.remaining = fset.Args()
	if *help {
		g.remaining = []string{helpFlag}
	}

	return g, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, `scribe - page-structured transcription files

Usage: scribe [options] <command> [args]

Options:
  -C, --cwd <dir>      Run as if started in <dir>
  -c, --config <file>  Use specified config file
      --repo <dir>     Repository root (overrides repo_path)
  -v, --verbose        Log autosave and file activity

Commands:`)

	if commands == nil {
		commands = (&app{}).commands()
	}

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}

	fprintln(w, `
Run 'scribe <command> --help' for command flags.`)
}
