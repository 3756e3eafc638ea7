// Package report renders transcription progress for humans.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/calvinalkan/scribe/internal/catalog"
)

// Summary aggregates the statuses of a catalog.
type Summary struct {
	Documents   int
	Sources     int
	Transcripts int
	Broken      int
	Pages       int
	Transcribed int
	Empty       int
	LineMarks   int
}

// Summarize totals statuses.
func Summarize(statuses []catalog.Status) Summary {
	sum := Summary{Documents: len(statuses)}

	for _, st := range statuses {
		if st.SourceExists {
			sum.Sources++
		}

		if st.TranscriptExists {
			sum.Transcripts++
		}

		if st.Err != nil {
			sum.Broken++
		}

		if st.Stats != nil {
			sum.Pages += st.Stats.Pages
			sum.Transcribed += st.Stats.Transcribed
			sum.Empty += st.Stats.Empty
			sum.LineMarks += st.Stats.LineMarks
		}
	}

	return sum
}

// WriteMarkdown writes a progress report for statuses to w.
func WriteMarkdown(w io.Writer, statuses []catalog.Status) error {
	md := markdown.NewMarkdown(w)
	sum := Summarize(statuses)

	md.H1("Transcription Progress")
	md.PlainText("")

	writeSummary(md, sum)
	writeDocuments(md, statuses)

	return md.Build()
}

func writeSummary(md *markdown.Markdown, sum Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Documents", strconv.Itoa(sum.Documents)},
			{"Sources present", strconv.Itoa(sum.Sources)},
			{"Transcripts present", strconv.Itoa(sum.Transcripts)},
			{"Pages", strconv.Itoa(sum.Pages)},
			{"Transcribed pages", strconv.Itoa(sum.Transcribed)},
			{"Lines", strconv.Itoa(sum.LineMarks)},
		},
	})
	md.PlainText("")

	if sum.Pages > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Pages"),
			piechart.WithShowData(true),
		)
		chart.LabelAndIntValue("Transcribed", uint64(sum.Transcribed))
		chart.LabelAndIntValue("Empty", uint64(sum.Empty))

		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	if sum.Broken > 0 {
		md.Warningf("%d transcript(s) could not be read. Run `scribe check` on them.", sum.Broken)
		md.PlainText("")
	}
}

func writeDocuments(md *markdown.Markdown, statuses []catalog.Status) {
	md.H2("Documents")
	md.PlainText("")

	if len(statuses) == 0 {
		md.PlainText("The catalog is empty.")
		md.PlainText("")

		return
	}

	rows := make([][]string, 0, len(statuses))

	for _, st := range statuses {
		title := st.Title
		if title == "" {
			title = "-"
		}

		rows = append(rows, []string{
			"`" + st.ID + "`",
			title,
			yesNo(st.SourceExists),
			yesNo(st.TranscriptExists),
			progress(st),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Title", "Source", "Transcript", "Progress"},
		Rows:   rows,
	})
	md.PlainText("")
}

func progress(st catalog.Status) string {
	switch {
	case st.Err != nil:
		return "error"
	case st.Stats == nil:
		return "-"
	default:
		return fmt.Sprintf("%d/%d pages, %d lines", st.Stats.Transcribed, st.Stats.Pages, st.Stats.LineMarks)
	}
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}

	return "no"
}
