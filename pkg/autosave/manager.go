package autosave

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calvinalkan/scribe/pkg/fs"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

// State is the persistence state of a managed Document.
type State uint8

const (
	// StateClean means memory and disk agree.
	StateClean State = iota

	// StateDirty means there are edits that have not been flushed.
	StateDirty

	// StateFlushing is held for the duration of a flush. It is only visible
	// from inside the flush critical section, e.g. to a logger.
	StateFlushing

	// StateConflict means a flush found the file changed by someone else.
	// It persists until [Manager.Reload] or [Manager.Overwrite].
	StateConflict
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateFlushing:
		return "flushing"
	case StateConflict:
		return "conflict"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Option configures a [Manager].
type Option func(*Manager)

// WithLogger sets the logger for flush and conflict events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithWriteOptions overrides the atomic write options used by flushes.
func WithWriteOptions(opts fs.AtomicWriteOptions) Option {
	return func(m *Manager) {
		m.writeOpts = opts
	}
}

// Manager owns one open transcript: its Document, the fingerprint of the
// last content read from or written to disk, and the persistence state.
//
// A single mutex covers edits and the whole flush (fingerprint check,
// serialize, write, rename, clear dirty), so mutations never interleave with
// a flush. The Manager owns no clock; callers decide when to call
// [Manager.FlushIfDirty].
type Manager struct {
	fsys      fs.FS
	path      string
	log       *slog.Logger
	writeOpts fs.AtomicWriteOptions

	mu       sync.Mutex
	doc      *transcript.Document
	fp       Fingerprint
	state    State
	forced   bool
	conflict *ConflictError
}

// Open loads path and returns a Manager for it. A missing file opens as an
// empty, clean Document.
func Open(fsys fs.FS, path string, opts ...Option) (*Manager, error) {
	if fsys == nil {
		panic("fsys is nil")
	}

	m := &Manager{
		fsys:      fsys,
		path:      path,
		log:       slog.New(slog.DiscardHandler),
		writeOpts: fs.NewAtomicWriter(fsys).DefaultOptions(),
	}

	for _, opt := range opts {
		opt(m)
	}

	doc, fp, err := Load(fsys, path)
	if err != nil {
		return nil, err
	}

	m.doc = doc
	m.fp = fp
	m.log.Debug("transcript opened", "path", path, "pages", doc.Len(), "fingerprint", fp.String())

	return m, nil
}

// Path returns the transcript path.
func (m *Manager) Path() string {
	return m.path
}

// State returns the current persistence state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Fingerprint returns the fingerprint of the last content read or written.
func (m *Manager) Fingerprint() Fingerprint {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.fp
}

// Conflict returns the pending conflict, or nil outside [StateConflict].
func (m *Manager) Conflict() *ConflictError {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conflict
}

// View calls fn with the Document under the lock. fn must not keep the
// pointer or mutate the Document.
func (m *Manager) View(fn func(doc *transcript.Document)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(m.doc)
}

// Edit calls fn with the Document under the lock and moves a clean Manager
// to [StateDirty] if fn changed anything. Edits are allowed in
// [StateConflict]; they are kept and written by [Manager.Overwrite].
//
// fn runs on a copy that replaces the Document only when fn returns nil, so
// a failing fn leaves no partial changes behind. fn's error is returned as
// is.
func (m *Manager) Edit(fn func(doc *transcript.Document) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := m.doc.Clone()

	err := fn(draft)
	if err != nil {
		return err
	}

	m.doc = draft

	if m.state == StateClean && m.doc.IsDirty() {
		m.state = StateDirty
	}

	return nil
}

// MarkDirty schedules a write even if no page changed, e.g. to rewrite a
// file in canonical form.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forced = true

	if m.state == StateClean {
		m.state = StateDirty
	}
}

// FlushIfDirty flushes when there are unsaved changes. It reports whether a
// write happened. In [StateConflict] it returns the pending conflict.
func (m *Manager) FlushIfDirty() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflict != nil {
		return false, m.conflict
	}

	if !m.forced && !m.doc.IsDirty() {
		return false, nil
	}

	err := m.flushLocked()
	if err != nil && !errors.Is(err, fs.ErrAtomicWriteDirSync) {
		return false, err
	}

	return true, err
}

// Flush writes the Document now, dirty or not. In [StateConflict] it
// returns the pending conflict without writing.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflict != nil {
		return m.conflict
	}

	return m.flushLocked()
}

// Reload discards the in-memory Document, including unsaved edits, and
// reads the file again. On failure nothing changes.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, fp, err := Load(m.fsys, m.path)
	if err != nil {
		return err
	}

	m.log.Info("transcript reloaded", "path", m.path, "discarded_dirty", m.doc.IsDirty(), "fingerprint", fp.String())

	m.doc = doc
	m.fp = fp
	m.forced = false
	m.conflict = nil
	m.state = StateClean

	return nil
}

// Overwrite resolves a conflict in favor of the in-memory Document: it
// accepts whatever is on disk now as the expected state and flushes over it.
func (m *Manager) Overwrite() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, actual, err := readFingerprint(m.fsys, m.path)
	if err != nil {
		return fmt.Errorf("%w: fingerprint %s: %w", ErrIO, m.path, err)
	}

	m.log.Info("overwriting external changes", "path", m.path, "expected", m.fp.String(), "actual", actual.String())

	m.fp = actual
	m.conflict = nil

	return m.flushLocked()
}

func (m *Manager) flushLocked() error {
	prev := m.state
	m.state = StateFlushing

	fp, err := save(m.fsys, m.path, m.doc, m.fp, m.writeOpts)

	var conflict *ConflictError

	switch {
	case errors.As(err, &conflict):
		m.state = StateConflict
		m.conflict = conflict
		m.log.Warn("transcript changed on disk, not overwriting", "path", m.path,
			"expected", conflict.Expected.String(), "actual", conflict.Actual.String())

		return err
	case errors.Is(err, fs.ErrAtomicWriteDirSync):
		// The new content is in place; only durability of the rename is
		// unknown.
		m.markFlushed(fp)
		m.log.Warn("transcript written but directory sync failed", "path", m.path, "error", err)

		return err
	case err != nil:
		m.state = StateDirty
		if prev == StateClean && !m.forced && !m.doc.IsDirty() {
			m.state = StateClean
		}

		m.log.Warn("flush failed, edits kept in memory", "path", m.path, "error", err)

		return err
	}

	m.markFlushed(fp)
	m.log.Debug("transcript flushed", "path", m.path, "pages", m.doc.Len(), "fingerprint", fp.String())

	return nil
}

func (m *Manager) markFlushed(fp Fingerprint) {
	m.fp = fp
	m.doc.ClearDirty()
	m.forced = false
	m.state = StateClean
}
