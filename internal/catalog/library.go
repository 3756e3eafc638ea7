package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/scribe/pkg/autosave"
	"github.com/calvinalkan/scribe/pkg/fs"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

// statusConcurrency bounds the number of transcripts read at once.
const statusConcurrency = 8

// scanExtensions are the image types listed as scans of a source directory.
var scanExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}

// Library resolves catalog entries to files. It is passed explicitly to
// everything that needs a path; there is no process-wide repository.
type Library struct {
	// Root is the repository root. Empty means no repository is
	// configured: sources are unavailable and every transcript lives in
	// WorkDir.
	Root string

	// WorkDir holds transcripts of documents without a repository path.
	WorkDir string

	FS      fs.FS
	Catalog *Catalog
	Logger  *slog.Logger
}

func (l *Library) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return l.Logger
}

// TranscriptPath returns where the transcript of id is read and written:
// Root/<transcript> when the document has a transcript path and a
// repository is configured, otherwise WorkDir/<id>.txt. Unknown ids also
// resolve to the work directory; check them with [ValidateID] first.
func (l *Library) TranscriptPath(id string) string {
	doc, ok := l.Catalog.Lookup(id)
	if ok && doc.Transcript != "" && l.Root != "" {
		return filepath.Join(l.Root, doc.Transcript)
	}

	return filepath.Join(l.WorkDir, id+".txt")
}

// SourcePath returns the absolute source path of doc, or "" when it has none
// or no repository is configured.
func (l *Library) SourcePath(doc Document) string {
	if doc.Source == "" || l.Root == "" {
		return ""
	}

	return filepath.Join(l.Root, doc.Source)
}

// ScanKind tells how a document's source is stored.
type ScanKind string

// Valid ScanKind values.
const (
	ScanPDF    ScanKind = "pdf"
	ScanImages ScanKind = "images"
)

// Scans lists the scanned pages of a document.
type Scans struct {
	Kind  ScanKind
	Files []string // absolute paths in name order; one entry for a PDF
}

// Scans returns the source files of id: the PDF itself, or the images in
// the source directory sorted by name.
func (l *Library) Scans(id string) (Scans, error) {
	doc, ok := l.Catalog.Lookup(id)
	if !ok {
		return Scans{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	src := l.SourcePath(doc)
	if src == "" {
		return Scans{}, fmt.Errorf("document %s has no source (repository configured: %t)", id, l.Root != "")
	}

	info, err := l.FS.Stat(src)
	if err != nil {
		return Scans{}, fmt.Errorf("source of %s: %w", id, err)
	}

	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(src), ".pdf") {
			return Scans{Kind: ScanPDF, Files: []string{src}}, nil
		}

		return Scans{}, fmt.Errorf("source of %s is neither a PDF nor a directory: %s", id, src)
	}

	entries, err := l.FS.ReadDir(src)
	if err != nil {
		return Scans{}, fmt.Errorf("source of %s: %w", id, err)
	}

	out := Scans{Kind: ScanImages}

	for _, e := range entries {
		if e.IsDir() || !slices.Contains(scanExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}

		out.Files = append(out.Files, filepath.Join(src, e.Name()))
	}

	return out, nil
}

// Status is the state of one document on disk.
type Status struct {
	Document

	TranscriptPath   string
	SourceExists     bool
	TranscriptExists bool

	// Stats is set when the transcript exists and parses.
	Stats *transcript.Stats

	// Err is the read or parse error of an existing transcript.
	Err error
}

// StatusOf returns the status of a single document.
func (l *Library) StatusOf(id string) (Status, error) {
	doc, ok := l.Catalog.Lookup(id)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	return l.status(doc), nil
}

// Status returns the status of every catalog document in catalog order.
// Transcripts are read concurrently. Per-document problems are reported in
// [Status.Err]; the returned error is only set on cancellation.
func (l *Library) Status(ctx context.Context) ([]Status, error) {
	out := make([]Status, len(l.Catalog.Documents))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)

	for i, doc := range l.Catalog.Documents {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			out[i] = l.status(doc)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func (l *Library) status(doc Document) Status {
	st := Status{Document: doc, TranscriptPath: l.TranscriptPath(doc.ID)}

	if src := l.SourcePath(doc); src != "" {
		exists, err := l.FS.Exists(src)
		if err != nil {
			l.logger().Warn("cannot stat source", "document", doc.ID, "path", src, "error", err)
		}

		st.SourceExists = exists
	}

	exists, err := l.FS.Exists(st.TranscriptPath)
	if err != nil {
		st.Err = err

		return st
	}

	st.TranscriptExists = exists
	if !exists {
		return st
	}

	parsed, _, err := autosave.Load(l.FS, st.TranscriptPath)
	if err != nil {
		st.Err = err

		var fe *transcript.FormatError
		if !errors.As(err, &fe) && !errors.Is(err, os.ErrNotExist) {
			l.logger().Warn("cannot read transcript", "document", doc.ID, "error", err)
		}

		return st
	}

	stats := transcript.ComputeStats(parsed)
	st.Stats = &stats

	return st
}
