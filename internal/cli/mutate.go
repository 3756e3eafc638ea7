package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/pkg/transcript"
)

func pageNotFound(id string) error {
	return fmt.Errorf("%w: %s", transcript.ErrUnknownPage, id)
}

// AddPageCmd returns the add-page command.
func AddPageCmd(a *app) *Command {
	fset := flag.NewFlagSet("add-page", flag.ContinueOnError)
	pageID := fset.String("page", "", "Page id (required)")
	scan := fset.Int64("scan", -1, "Scan number")
	notes := fset.String("notes", "", "Notes")
	sets := fset.StringArray("set", nil, "Extra annotation `key=value` (repeatable)")
	at := fset.Int("at", -1, "Insert at `position` (0-based; default: append)")
	bodyFile := fset.String("body-file", "", "Read the body from `file` ('-' for stdin)")

	return &Command{
		Flags: fset,
		Usage: "add-page <doc> --page <id> [flags]",
		Short: "Add a page",
		Long: `Add a page to a transcript. The transcript is created if it does
not exist yet.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return errDocRequired
			}

			if *pageID == "" {
				return errPageRequired
			}

			ann := transcript.NewAnnotations(*pageID)

			if fset.Changed("scan") {
				ann.Set(transcript.KeyScan, transcript.IntScalar(*scan))
			}

			if *notes != "" {
				ann.Set(transcript.KeyNotes, transcript.StringScalar(*notes))
			}

			for _, kv := range *sets {
				key, value, err := parseKeyValue(kv)
				if err != nil {
					return err
				}

				if key == transcript.KeyPage {
					return errPageViaFlag
				}

				ann.Set(key, value)
			}

			body := ""

			if *bodyFile != "" {
				var err error

				body, err = a.readInput(*bodyFile)
				if err != nil {
					return err
				}
			}

			err := a.edit(io, args[0], func(doc *transcript.Document) error {
				return doc.AddPage(*at, ann, body)
			})
			if err != nil {
				return err
			}

			io.Println("added page", *pageID)

			return nil
		},
	}
}

// SetBodyCmd returns the set-body command.
func SetBodyCmd(a *app) *Command {
	fset := flag.NewFlagSet("set-body", flag.ContinueOnError)
	file := fset.StringP("file", "f", "-", "Read the body from `file` ('-' for stdin)")

	return &Command{
		Flags: fset,
		Usage: "set-body <doc> <page> [--file F]",
		Short: "Replace a page body",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return errPageRequired
			}

			body, err := a.readInput(*file)
			if err != nil {
				return err
			}

			return a.edit(io, args[0], func(doc *transcript.Document) error {
				return doc.SetBody(args[1], body)
			})
		},
	}
}

// AnnotateCmd returns the annotate command.
func AnnotateCmd(a *app) *Command {
	fset := flag.NewFlagSet("annotate", flag.ContinueOnError)
	deletes := fset.StringArray("delete", nil, "Remove annotation `key` (repeatable)")

	return &Command{
		Flags: fset,
		Usage: "annotate <doc> <page> key=value... [--delete key]",
		Short: "Set or remove page annotations",
		Long: `Set annotations on a page. Values are typed like in the file:
true/false are booleans, whole numbers are integers, anything else is a
string. Quote a value ("12") to force a string. Setting page renames the
page.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return errPageRequired
			}

			if len(args) == 2 && len(*deletes) == 0 {
				return errKeyValueRequired
			}

			type entry struct {
				key   string
				value transcript.Scalar
			}

			entries := make([]entry, 0, len(args)-2)

			for _, kv := range args[2:] {
				key, value, err := parseKeyValue(kv)
				if err != nil {
					return err
				}

				entries = append(entries, entry{key, value})
			}

			return a.edit(io, args[0], func(doc *transcript.Document) error {
				id := args[1]

				for _, e := range entries {
					if err := doc.SetAnnotation(id, e.key, e.value); err != nil {
						return err
					}

					if e.key == transcript.KeyPage {
						id = e.value.Text()
					}
				}

				for _, key := range *deletes {
					if err := doc.DeleteAnnotation(id, key); err != nil {
						return err
					}
				}

				return nil
			})
		},
	}
}

// RmPageCmd returns the rm-page command.
func RmPageCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm-page", flag.ContinueOnError),
		Usage: "rm-page <doc> <page>",
		Short: "Remove a page",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return errPageRequired
			}

			err := a.edit(io, args[0], func(doc *transcript.Document) error {
				return doc.RemovePage(args[1])
			})
			if err != nil {
				return err
			}

			io.Println("removed page", args[1])

			return nil
		},
	}
}

// HeaderCmd returns the header command.
func HeaderCmd(a *app) *Command {
	fset := flag.NewFlagSet("header", flag.ContinueOnError)
	file := fset.StringP("file", "f", "", "Replace the header with the content of `file` ('-' for stdin)")

	return &Command{
		Flags: fset,
		Usage: "header <doc> [--file F]",
		Short: "Print or replace the document header",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return errDocRequired
			}

			if *file == "" {
				mgr, err := a.open(io, args[0])
				if err != nil {
					return err
				}

				mgr.View(func(doc *transcript.Document) {
					io.Printf("%s", doc.Header())
				})

				return nil
			}

			text, err := a.readInput(*file)
			if err != nil {
				return err
			}

			return a.edit(io, args[0], func(doc *transcript.Document) error {
				return doc.SetHeader(text)
			})
		},
	}
}
