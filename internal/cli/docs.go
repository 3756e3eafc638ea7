package cli

import (
	"context"
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/internal/catalog"
)

// DocsCmd returns the docs command.
func DocsCmd(a *app) *Command {
	fset := flag.NewFlagSet("docs", flag.ContinueOnError)
	asJSON := fset.Bool("json", false, "Print statuses as JSON")

	return &Command{
		Flags: fset,
		Usage: "docs [--json]",
		Short: "List catalog documents with status",
		Long: `List every document in the catalog with whether its source and
transcript exist and how many pages are transcribed.`,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execDocs(ctx, io, a, *asJSON)
		},
	}
}

type docStatusJSON struct {
	catalog.Document

	SourceExists     bool   `json:"source_exists"`
	TranscriptExists bool   `json:"transcript_exists"`
	TranscriptPath   string `json:"transcript_path"`
	Pages            int    `json:"pages"`
	Transcribed      int    `json:"transcribed"`
	TotalLines       int    `json:"total_lines"`
	Error            string `json:"error,omitempty"`
}

func execDocs(ctx context.Context, io *IO, a *app, asJSON bool) error {
	lib, err := a.library()
	if err != nil {
		return err
	}

	if a.cfg.RepoPathAbs == "" && lib.Catalog.Len() > 0 {
		io.Warn("no repository configured", "run 'scribe config set repo_path <dir>' or pass --repo")
	}

	statuses, err := lib.Status(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		rows := make([]docStatusJSON, 0, len(statuses))
		for _, st := range statuses {
			rows = append(rows, toJSONStatus(st))
		}

		out, err := json.MarshalIndent(map[string]any{"documents": rows}, "", "  ")
		if err != nil {
			return err
		}

		io.Println(string(out))

		return nil
	}

	if len(statuses) == 0 {
		io.Println("(no documents in " + a.cfg.CatalogAbs + ")")

		return nil
	}

	for _, st := range statuses {
		io.Printf("%-16s %-6s %-10s %s\n", st.ID, mark(st.SourceExists, "src"), mark(st.TranscriptExists, "text"), progressText(st))

		if st.Err != nil {
			io.Warn(fmt.Sprintf("%s: %v", st.ID, st.Err), "run 'scribe check "+st.TranscriptPath+"'")
		}
	}

	return nil
}

func toJSONStatus(st catalog.Status) docStatusJSON {
	row := docStatusJSON{
		Document:         st.Document,
		SourceExists:     st.SourceExists,
		TranscriptExists: st.TranscriptExists,
		TranscriptPath:   st.TranscriptPath,
	}

	if st.Stats != nil {
		row.Pages = st.Stats.Pages
		row.Transcribed = st.Stats.Transcribed
		row.TotalLines = st.Stats.LineMarks
	}

	if st.Err != nil {
		row.Error = st.Err.Error()
	}

	return row
}

func mark(ok bool, label string) string {
	if ok {
		return label
	}

	return "-"
}

func progressText(st catalog.Status) string {
	switch {
	case st.Err != nil:
		return "unreadable"
	case st.Stats == nil:
		return "not started"
	default:
		return fmt.Sprintf("%d/%d pages, %d lines", st.Stats.Transcribed, st.Stats.Pages, st.Stats.LineMarks)
	}
}

// StatusCmd returns the status command.
func StatusCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status <doc>",
		Short: "Show paths and progress of one document",
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execStatus(io, a, args)
		},
	}
}

func execStatus(io *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errDocRequired
	}

	lib, err := a.library()
	if err != nil {
		return err
	}

	st, err := lib.StatusOf(args[0])
	if err != nil {
		return err
	}

	io.Println("id=" + st.ID)

	if st.Title != "" {
		io.Println("title=" + st.Title)
	}

	if src := lib.SourcePath(st.Document); src != "" {
		io.Printf("source=%s (exists=%t)\n", src, st.SourceExists)
	}

	io.Printf("transcript=%s (exists=%t)\n", st.TranscriptPath, st.TranscriptExists)

	switch {
	case st.Err != nil:
		io.Warn(st.Err.Error(), "fix the file, then run 'scribe check "+st.TranscriptPath+"'")
	case st.Stats != nil:
		io.Printf("pages=%d\ntranscribed=%d\nempty=%d\nlines=%d\n",
			st.Stats.Pages, st.Stats.Transcribed, st.Stats.Empty, st.Stats.LineMarks)
	}

	return nil
}
