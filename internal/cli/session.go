package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/scribe/pkg/autosave"
	"github.com/calvinalkan/scribe/pkg/fs"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

// SessionCmd returns the session command.
func SessionCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("session", flag.ContinueOnError),
		Usage: "session <doc>",
		Short: "Edit a document interactively with autosave",
		Long: `Open a document in an interactive editing session. Changes are
written automatically after autosave_delay without further edits, on 'save',
and on exit. If the file is changed by another program, autosave stops and
'reload' (drop local edits) or 'overwrite' (keep them) resolves the
conflict.

Only one session per document can run at a time.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return errDocRequired
			}

			return execSession(ctx, io, a, args[0])
		},
	}
}

var sessionCommands = []string{
	"help", "pages", "show", "add", "body", "append", "set", "unset", "rm",
	"header", "save", "reload", "overwrite", "status", "quit",
}

const sessionHelp = `Commands:
  pages                      List pages
  show [page]                Print the document or one page body
  add <page> [key=value...]  Append a page
  body <page> <text>         Replace a page body (\n starts a new line)
  append <page> <text>       Append a line to a page body
  set <page> key=value...    Set annotations
  unset <page> key...        Remove annotations
  rm <page>                  Remove a page
  header <text>              Replace the header
  save                       Write now
  reload                     Discard local edits and re-read the file
  overwrite                  Replace the file on disk with local edits
  status                     Show save state
  quit                       Save and exit`

func execSession(ctx context.Context, io *IO, a *app, id string) error {
	path, err := a.transcriptPath(io, id)
	if err != nil {
		return err
	}

	lock, err := fs.NewLocker(a.fsys).TryLock(path + ".lock")
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return fmt.Errorf("%w: %s", errSessionLocked, path)
		}

		return err
	}

	defer func() { _ = lock.Close() }()

	log := a.log.With("document", id)

	mgr, err := autosave.Open(a.fsys, path, autosave.WithLogger(log))
	if err != nil {
		return err
	}

	s := &session{io: io, mgr: mgr, log: log}
	s.autosave = newDebouncer(a.cfg.Autosave, s.autosaveNow)

	s.prompt = a.newPrompter(s.complete)
	defer func() { _ = s.prompt.Close() }()

	pages := 0

	mgr.View(func(doc *transcript.Document) { pages = doc.Len() })
	io.Printf("%s (%d pages, autosave after %s). Type 'help' for commands.\n", mgr.Path(), pages, a.cfg.Autosave)

	loopErr := s.loop(ctx)

	s.autosave.Stop()

	_, err = mgr.FlushIfDirty()
	if err != nil {
		if s.quitRefused && errors.Is(err, autosave.ErrExternalModification) {
			io.Warn("local edits were discarded", "the file on disk was kept")

			return loopErr
		}

		return fmt.Errorf("unsaved changes: %w", err)
	}

	return loopErr
}

type session struct {
	io       *IO
	mgr      *autosave.Manager
	log      *slog.Logger
	prompt   prompter
	autosave *debouncer

	quitRefused bool
}

type readResult struct {
	line string
	err  error
}

func (s *session) loop(ctx context.Context) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}

			if ctx.Err() != nil {
				s.log.Info("interrupted, saving")

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		quit, err := s.exec(line)
		if err != nil {
			s.io.Println("error:", err)
		}

		if quit {
			return nil
		}
	}
}

// readLine prompts in a goroutine so a cancelled context ends the session
// even while the prompt blocks. History is appended by the caller, never by
// a prompt goroutine abandoned on cancellation, which may still be running
// when the prompter is closed.
func (s *session) readLine(ctx context.Context) (string, error) {
	ch := make(chan readResult, 1)

	go func() {
		line, err := s.prompt.Prompt(s.promptText())
		ch <- readResult{line: line, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && strings.TrimSpace(r.line) != "" {
			s.prompt.AppendHistory(r.line)
		}

		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *session) promptText() string {
	switch s.mgr.State() {
	case autosave.StateConflict:
		return "scribe (conflict)> "
	case autosave.StateDirty:
		return "scribe*> "
	default:
		return "scribe> "
	}
}

func (s *session) exec(line string) (bool, error) {
	cmd, rest := cutWord(line)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		if s.mgr.State() == autosave.StateConflict && !s.quitRefused {
			s.quitRefused = true

			return false, fmt.Errorf("%w (quit again to discard local edits)", errUnresolved)
		}

		return true, nil
	case "help", "?":
		s.io.Println(sessionHelp)

		return false, nil
	case "pages":
		s.printPages()

		return false, nil
	case "show":
		return false, s.show(rest)
	case "status":
		s.printStatus()

		return false, nil
	case "save":
		err := s.mgr.Flush()
		if err == nil {
			s.io.Println("saved")
		}

		return false, err
	case "reload":
		s.autosave.Stop()

		err := s.mgr.Reload()
		if err == nil {
			s.quitRefused = false
			s.io.Println("reloaded from disk")
		}

		return false, err
	case "overwrite":
		s.autosave.Stop()

		err := s.mgr.Overwrite()
		if err == nil {
			s.quitRefused = false
			s.io.Println("saved over external changes")
		}

		return false, err
	}

	edit, err := s.parseEdit(cmd, rest)
	if err != nil {
		return false, err
	}

	err = s.mgr.Edit(edit)
	if err != nil {
		return false, err
	}

	s.autosave.Trigger()

	return false, nil
}

// parseEdit turns a mutating session command into a Document edit.
func (s *session) parseEdit(cmd, rest string) (func(*transcript.Document) error, error) {
	pageID, text := cutWord(rest)

	switch strings.ToLower(cmd) {
	case "add":
		if pageID == "" {
			return nil, errPageRequired
		}

		ann := transcript.NewAnnotations(pageID)

		for _, kv := range strings.Fields(text) {
			key, value, err := parseKeyValue(kv)
			if err != nil {
				return nil, err
			}

			ann.Set(key, value)
		}

		return func(doc *transcript.Document) error {
			return doc.AddPage(-1, ann, "")
		}, nil
	case "body":
		if pageID == "" {
			return nil, errPageRequired
		}

		return func(doc *transcript.Document) error {
			return doc.SetBody(pageID, unescapeNewlines(text))
		}, nil
	case "append":
		if pageID == "" {
			return nil, errPageRequired
		}

		return func(doc *transcript.Document) error {
			p, ok := doc.Page(pageID)
			if !ok {
				return pageNotFound(pageID)
			}

			return doc.SetBody(pageID, p.Body+unescapeNewlines(text)+"\n")
		}, nil
	case "set":
		if pageID == "" {
			return nil, errPageRequired
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			return nil, errKeyValueRequired
		}

		keys := make([]string, 0, len(fields))
		values := make([]transcript.Scalar, 0, len(fields))

		for _, kv := range fields {
			key, value, err := parseKeyValue(kv)
			if err != nil {
				return nil, err
			}

			keys = append(keys, key)
			values = append(values, value)
		}

		return func(doc *transcript.Document) error {
			id := pageID

			for i, key := range keys {
				if err := doc.SetAnnotation(id, key, values[i]); err != nil {
					return err
				}

				if key == transcript.KeyPage {
					id = values[i].Text()
				}
			}

			return nil
		}, nil
	case "unset":
		if pageID == "" {
			return nil, errPageRequired
		}

		return func(doc *transcript.Document) error {
			for _, key := range strings.Fields(text) {
				if err := doc.DeleteAnnotation(pageID, key); err != nil {
					return err
				}
			}

			return nil
		}, nil
	case "rm":
		if pageID == "" {
			return nil, errPageRequired
		}

		return func(doc *transcript.Document) error {
			return doc.RemovePage(pageID)
		}, nil
	case "header":
		return func(doc *transcript.Document) error {
			return doc.SetHeader(unescapeNewlines(rest))
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s (type 'help')", errUnknownCommand, cmd)
	}
}

func (s *session) printPages() {
	s.mgr.View(func(doc *transcript.Document) {
		for _, p := range doc.Pages() {
			marker := " "
			if p.Dirty {
				marker = "*"
			}

			notes, _ := p.Annotations.Notes()
			s.io.Printf("%s %-8s %4d chars  %s\n", marker, p.ID, len(p.Body), notes)
		}
	})
}

func (s *session) show(rest string) error {
	var err error

	s.mgr.View(func(doc *transcript.Document) {
		if rest == "" {
			s.io.Printf("%s", transcript.Serialize(doc))

			return
		}

		p, ok := doc.Page(rest)
		if !ok {
			err = pageNotFound(rest)

			return
		}

		s.io.Printf("%s", p.Body)
	})

	return err
}

func (s *session) printStatus() {
	s.io.Println("state=" + s.mgr.State().String())
	s.io.Println("fingerprint=" + s.mgr.Fingerprint().String())

	s.mgr.View(func(doc *transcript.Document) {
		s.io.Println("dirty_pages=" + strings.Join(doc.DirtyPages(), ","))
	})

	if c := s.mgr.Conflict(); c != nil {
		s.io.Println("conflict=" + c.Error())
	}
}

// autosaveNow runs on the debounce timer goroutine. It only logs; the
// command loop owns the IO.
func (s *session) autosaveNow() {
	wrote, err := s.mgr.FlushIfDirty()

	switch {
	case errors.Is(err, autosave.ErrExternalModification):
		s.log.Warn("autosave paused: file changed on disk, use 'reload' or 'overwrite'")
	case err != nil:
		s.log.Warn("autosave failed, will retry after the next edit", "error", err)
	case wrote:
		s.log.Debug("autosaved", "path", s.mgr.Path())
	}
}

func (s *session) complete(line string) []string {
	cmd, rest := cutWord(line)

	if !strings.Contains(line, " ") {
		var out []string

		for _, c := range sessionCommands {
			if strings.HasPrefix(c, cmd) {
				out = append(out, c)
			}
		}

		return out
	}

	if strings.Contains(rest, " ") {
		return nil
	}

	var out []string

	s.mgr.View(func(doc *transcript.Document) {
		for _, p := range doc.Pages() {
			if strings.HasPrefix(p.ID, rest) {
				out = append(out, cmd+" "+p.ID)
			}
		}
	})

	slices.Sort(out)

	return out
}

func cutWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")

	word, rest, _ := strings.Cut(s, " ")

	return word, strings.TrimLeft(rest, " \t")
}

func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// debouncer calls fn once delay has passed since the last Trigger.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the timer.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels a pending call. A call already running is not interrupted.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// prompter reads session input lines.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// newPrompter returns a line editor with history when attached to the
// process stdin, and a plain line reader otherwise.
func (a *app) newPrompter(complete func(string) []string) prompter {
	if f, ok := a.in.(*os.File); ok && f == os.Stdin {
		return newLinerPrompter(a.cfg.HistoryFileAbs, complete, a.log)
	}

	in := a.in
	if in == nil {
		in = strings.NewReader("")
	}

	return &scanPrompter{sc: bufio.NewScanner(in)}
}

type linerPrompter struct {
	state       *liner.State
	historyPath string
	log         *slog.Logger
}

func newLinerPrompter(historyPath string, complete func(string) []string, log *slog.Logger) *linerPrompter {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(complete)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}

	return &linerPrompter{state: state, historyPath: historyPath, log: log}
}

func (p *linerPrompter) Prompt(prompt string) (string, error) {
	return p.state.Prompt(prompt)
}

func (p *linerPrompter) AppendHistory(line string) {
	p.state.AppendHistory(line)
}

// Close saves history and restores the terminal.
func (p *linerPrompter) Close() error {
	if p.historyPath != "" {
		err := p.writeHistory()
		if err != nil {
			p.log.Warn("cannot save session history", "path", p.historyPath, "error", err)
		}
	}

	return p.state.Close()
}

func (p *linerPrompter) writeHistory() error {
	err := os.MkdirAll(filepath.Dir(p.historyPath), 0o755)
	if err != nil {
		return err
	}

	f, err := os.Create(p.historyPath)
	if err != nil {
		return err
	}

	_, err = p.state.WriteHistory(f)

	return errors.Join(err, f.Close())
}

type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.sc.Text(), nil
}

func (*scanPrompter) AppendHistory(string) {}

func (*scanPrompter) Close() error { return nil }
