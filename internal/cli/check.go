package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/internal/report"
	"github.com/calvinalkan/scribe/pkg/autosave"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

// CheckCmd returns the check command.
func CheckCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("check", flag.ContinueOnError),
		Usage: "check <path>...",
		Short: "Validate transcript files",
		Long: `Parse each file and report format errors with their line numbers.
Exits non-zero if any file is invalid.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return errPathRequired
			}

			failed := 0

			for _, path := range args {
				data, err := a.fsys.ReadFile(a.resolve(path))
				if err != nil {
					io.ErrPrintln(path + ": " + err.Error())

					failed++

					continue
				}

				doc, err := transcript.ParseBytes(data)
				if err != nil {
					var fe *transcript.FormatError
					if errors.As(err, &fe) {
						io.ErrPrintln(fmt.Sprintf("%s:%d: %s: %s", path, fe.Line, fe.Kind, fe.Msg))
					} else {
						io.ErrPrintln(path + ": " + err.Error())
					}

					failed++

					continue
				}

				io.Printf("%s: ok (%d pages)\n", path, doc.Len())
			}

			if failed > 0 {
				return fmt.Errorf("%d %w", failed, errInvalidFiles)
			}

			return nil
		},
	}
}

// FmtCmd returns the fmt command.
func FmtCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("fmt", flag.ContinueOnError),
		Usage: "fmt <doc>",
		Short: "Rewrite a transcript in canonical form",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return errDocRequired
			}

			mgr, err := a.open(io, args[0])
			if err != nil {
				return err
			}

			before, err := a.fsys.ReadFile(mgr.Path())
			if err != nil {
				return fmt.Errorf("%w: %w", autosave.ErrIO, err)
			}

			var canonical bytes.Buffer

			mgr.View(func(doc *transcript.Document) {
				err = transcript.Encode(&canonical, doc)
			})

			if err != nil {
				return err
			}

			if bytes.Equal(before, canonical.Bytes()) {
				io.Println(mgr.Path() + ": already canonical")

				return nil
			}

			mgr.MarkDirty()

			if _, err := mgr.FlushIfDirty(); err != nil {
				return err
			}

			io.Println(mgr.Path() + ": formatted")

			return nil
		},
	}
}

// ReportCmd returns the report command.
func ReportCmd(a *app) *Command {
	fset := flag.NewFlagSet("report", flag.ContinueOnError)
	output := fset.StringP("output", "o", "", "Write the report to `file` instead of stdout")

	return &Command{
		Flags: fset,
		Usage: "report [-o file]",
		Short: "Write a markdown progress report",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}

			statuses, err := lib.Status(ctx)
			if err != nil {
				return err
			}

			var buf bytes.Buffer

			err = report.WriteMarkdown(&buf, statuses)
			if err != nil {
				return fmt.Errorf("rendering report: %w", err)
			}

			if *output == "" {
				_, err = io.Out().Write(buf.Bytes())

				return err
			}

			path := a.resolve(*output)

			err = atomic.WriteFile(path, &buf)
			if err != nil {
				return fmt.Errorf("writing report: %w", err)
			}

			io.Println("wrote " + path)

			return nil
		},
	}
}

// ScansCmd returns the scans command.
func ScansCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("scans", flag.ContinueOnError),
		Usage: "scans <doc>",
		Short: "List the scanned images or PDF of a document",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return errDocRequired
			}

			lib, err := a.library()
			if err != nil {
				return err
			}

			scans, err := lib.Scans(args[0])
			if err != nil {
				return err
			}

			io.Println("type=" + string(scans.Kind))

			for _, f := range scans.Files {
				io.Println(f)
			}

			return nil
		},
	}
}
