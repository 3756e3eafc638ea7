package cli

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/pkg/transcript"
)

// PagesCmd returns the pages command.
func PagesCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("pages", flag.ContinueOnError),
		Usage: "pages <doc>",
		Short: "List pages with their annotations",
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execPages(io, a, args)
		},
	}
}

func execPages(io *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errDocRequired
	}

	mgr, err := a.open(io, args[0])
	if err != nil {
		return err
	}

	mgr.View(func(doc *transcript.Document) {
		if doc.Len() == 0 {
			io.Println("(no pages)")

			return
		}

		for _, p := range doc.Pages() {
			var attrs []string

			for k, v := range p.Annotations.All {
				if k == transcript.KeyPage {
					continue
				}

				attrs = append(attrs, k+"="+v.String())
			}

			state := strconv.Itoa(strings.Count(p.Body, "\n")) + " lines"
			if strings.TrimSpace(p.Body) == "" {
				state = "empty"
			}

			io.Printf("%-8s %-10s %s\n", p.ID, state, strings.Join(attrs, " "))
		}
	})

	return nil
}

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <doc> [page]",
		Short: "Print a transcript or one page body",
		Long: `Print the whole transcript in canonical form, or only the body of
the given page.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execShow(io, a, args)
		},
	}
}

func execShow(io *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errDocRequired
	}

	mgr, err := a.open(io, args[0])
	if err != nil {
		return err
	}

	var showErr error

	mgr.View(func(doc *transcript.Document) {
		if len(args) == 1 {
			showErr = transcript.Encode(io.Out(), doc)

			return
		}

		p, ok := doc.Page(args[1])
		if !ok {
			showErr = pageNotFound(args[1])

			return
		}

		io.Printf("%s", p.Body)
	})

	return showErr
}

// MetaCmd returns the meta command.
func MetaCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("meta", flag.ContinueOnError),
		Usage: "meta <doc>",
		Short: "Print page annotations and progress as JSON",
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execMeta(io, a, args)
		},
	}
}

func execMeta(io *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errDocRequired
	}

	mgr, err := a.open(io, args[0])
	if err != nil {
		return err
	}

	var stats transcript.Stats

	mgr.View(func(doc *transcript.Document) {
		stats = transcript.ComputeStats(doc)
	})

	out, err := json.MarshalIndent(map[string]any{
		"pages":       stats.Annotations,
		"total_lines": stats.LineMarks,
		"transcribed": stats.Transcribed,
		"empty":       stats.Empty,
	}, "", "  ")
	if err != nil {
		return err
	}

	io.Println(string(out))

	return nil
}
