package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/scribe/internal/catalog"
	"github.com/calvinalkan/scribe/internal/config"
	"github.com/calvinalkan/scribe/pkg/autosave"
	"github.com/calvinalkan/scribe/pkg/fs"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

// app carries what commands share: resolved config, filesystem and logger.
type app struct {
	cfg        config.Config
	configPath string
	fsys       fs.FS
	log        *slog.Logger
	in         io.Reader
}

func (a *app) commands() []*Command {
	return []*Command{
		DocsCmd(a),
		StatusCmd(a),
		PagesCmd(a),
		ShowCmd(a),
		MetaCmd(a),
		ScansCmd(a),
		AddPageCmd(a),
		SetBodyCmd(a),
		AnnotateCmd(a),
		RmPageCmd(a),
		HeaderCmd(a),
		CheckCmd(a),
		FmtCmd(a),
		ReportCmd(a),
		SessionCmd(a),
		ConfigCmd(a),
	}
}

func (a *app) library() (*catalog.Library, error) {
	cat, err := catalog.Load(a.fsys, a.cfg.CatalogAbs)
	if err != nil {
		return nil, err
	}

	return &catalog.Library{
		Root:    a.cfg.RepoPathAbs,
		WorkDir: a.cfg.WorkDirAbs,
		FS:      a.fsys,
		Catalog: cat,
		Logger:  a.log,
	}, nil
}

// transcriptPath resolves a document id. Ids missing from the catalog get
// a warning and the work directory path.
func (a *app) transcriptPath(o *IO, id string) (string, error) {
	if err := catalog.ValidateID(id); err != nil {
		return "", err
	}

	lib, err := a.library()
	if err != nil {
		return "", err
	}

	path := lib.TranscriptPath(id)

	if _, ok := lib.Catalog.Lookup(id); !ok {
		o.Warn(fmt.Sprintf("document %q is not in the catalog", id), "using "+path)
	}

	return path, nil
}

func (a *app) open(o *IO, id string) (*autosave.Manager, error) {
	path, err := a.transcriptPath(o, id)
	if err != nil {
		return nil, err
	}

	return autosave.Open(a.fsys, path, autosave.WithLogger(a.log.With("document", id)))
}

// edit applies fn to a document and flushes it.
func (a *app) edit(o *IO, id string, fn func(doc *transcript.Document) error) error {
	mgr, err := a.open(o, id)
	if err != nil {
		return err
	}

	err = mgr.Edit(fn)
	if err != nil {
		return err
	}

	err = mgr.Flush()
	if errors.Is(err, autosave.ErrExternalModification) {
		return fmt.Errorf("%w; nothing was written, run the command again", err)
	}

	return err
}

// readInput reads a file, or stdin for "-".
func (a *app) readInput(path string) (string, error) {
	if path == "-" {
		if a.in == nil {
			return "", nil
		}

		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}

		return string(data), nil
	}

	data, err := a.fsys.ReadFile(a.resolve(path))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return string(data), nil
}

func (a *app) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.cfg.EffectiveCwd, path)
}

// parseKeyValue splits "key=value" and infers the scalar type of value.
func parseKeyValue(arg string) (string, transcript.Scalar, error) {
	key, raw, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)

	if !ok || key == "" {
		return "", transcript.Scalar{}, fmt.Errorf("%w: %q", errBadKeyValue, arg)
	}

	return key, transcript.ParseScalar(raw), nil
}
