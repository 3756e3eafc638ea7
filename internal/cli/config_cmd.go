package cli

import (
	"context"
	"fmt"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/internal/config"
)

// ConfigCmd returns the config command.
func ConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("config", flag.ContinueOnError),
		Usage: "config [set <key> <value>]",
		Short: "Show or change configuration",
		Long: `Without arguments, display the effective configuration and which
files it was loaded from. 'config set' writes a key to the project config
file (.scribe.json, or the file given with -c). An empty value removes the
key.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return execPrintConfig(io, a.cfg)
			}

			if args[0] != "set" || len(args) != 3 {
				return fmt.Errorf("%w: config %v (want: config set <key> <value>)", errUnknownCommand, args)
			}

			path := filepath.Join(a.cfg.EffectiveCwd, config.FileName)
			if a.configPath != "" {
				path = a.resolve(a.configPath)
			}

			err := config.Set(path, args[1], args[2])
			if err != nil {
				return err
			}

			io.Printf("%s: %s=%q\n", path, args[1], args[2])

			return nil
		},
	}
}

func execPrintConfig(io *IO, cfg config.Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)

	if cfg.RepoPathAbs != "" {
		io.Println("repo_path=" + cfg.RepoPathAbs)
	} else {
		io.Println("repo_path=(none)")
	}

	io.Println("catalog=" + cfg.CatalogAbs)
	io.Println("work_dir=" + cfg.WorkDirAbs)
	io.Println("autosave_delay=" + cfg.Autosave.String())
	io.Println("history_file=" + cfg.HistoryFileAbs)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
