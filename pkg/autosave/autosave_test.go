package autosave_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/scribe/pkg/autosave"
	"github.com/calvinalkan/scribe/pkg/fs"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

const original = `===HEADER===
Sample doc
===END HEADER===
+++
page = "1"
scan = 1
+++
<<<>>>
`

func writeTranscript(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chapter1.txt")

	err := os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return string(data)
}

func setBody(id, text string) func(*transcript.Document) error {
	return func(doc *transcript.Document) error {
		return doc.SetBody(id, text)
	}
}

func Test_Load_Returns_Empty_Document_When_File_Missing(t *testing.T) {
	t.Parallel()

	doc, fp, err := autosave.Load(fs.NewReal(), filepath.Join(t.TempDir(), "new.txt"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if doc.Len() != 0 || doc.HasHeader() || fp.Exists {
		t.Fatalf("got len=%d header=%v exists=%v, want empty document", doc.Len(), doc.HasHeader(), fp.Exists)
	}
}

func Test_Load_Returns_FormatError_When_File_Malformed(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, "+++\npage = \"1\"\n+++\nno end\n")

	_, _, err := autosave.Load(fs.NewReal(), path)

	var fe *transcript.FormatError
	if !errors.As(err, &fe) || fe.Kind != transcript.KindUnterminatedBlock {
		t.Fatalf("err=%v, want UnterminatedBlock FormatError", err)
	}
}

func Test_Save_Returns_ExternalModification_And_Keeps_Disk_When_File_Changed(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)
	fsys := fs.NewReal()

	doc, fp, err := autosave.Load(fsys, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := doc.SetBody("1", "mine"); err != nil {
		t.Fatalf("SetBody: %v", err)
	}

	external := original + "+++\npage = \"2\"\n+++\ntheirs\n<<<>>>\n"
	if err := os.WriteFile(path, []byte(external), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	_, err = autosave.Save(fsys, path, doc, fp)
	if !errors.Is(err, autosave.ErrExternalModification) {
		t.Fatalf("Save err=%v, want ErrExternalModification", err)
	}

	var conflict *autosave.ConflictError
	if !errors.As(err, &conflict) || conflict.Actual.Equal(fp) {
		t.Fatalf("err=%v, want ConflictError with a different actual fingerprint", err)
	}

	if got := readFile(t, path); got != external {
		t.Fatalf("disk overwritten:\n%s", cmp.Diff(external, got))
	}
}

func Test_Save_Creates_File_And_Parent_Dir_When_Missing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "work", "doc-1.txt")
	doc := transcript.New()

	if err := doc.AddPage(-1, transcript.NewAnnotations("1"), "text"); err != nil {
		t.Fatalf("AddPage: %v", err)
	}

	fp, err := autosave.Save(fs.NewReal(), path, doc, autosave.Fingerprint{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := readFile(t, path)
	if !fp.Equal(autosave.FingerprintOf([]byte(got))) {
		t.Fatalf("fingerprint %s does not describe written content", fp)
	}

	if got != transcript.Serialize(doc) {
		t.Fatalf("written content mismatch:\n%s", cmp.Diff(transcript.Serialize(doc), got))
	}
}

func Test_Manager_Moves_Through_Dirty_To_Clean_When_Flushed(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)

	mgr, err := autosave.Open(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if wrote, err := mgr.FlushIfDirty(); wrote || err != nil {
		t.Fatalf("FlushIfDirty on clean = (%v, %v), want (false, nil)", wrote, err)
	}

	if err := mgr.Edit(setBody("1", "Hello")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if mgr.State() != autosave.StateDirty {
		t.Fatalf("state=%s, want dirty", mgr.State())
	}

	wrote, err := mgr.FlushIfDirty()
	if !wrote || err != nil {
		t.Fatalf("FlushIfDirty = (%v, %v), want (true, nil)", wrote, err)
	}

	if mgr.State() != autosave.StateClean {
		t.Fatalf("state=%s, want clean", mgr.State())
	}

	mgr.View(func(doc *transcript.Document) {
		if doc.IsDirty() {
			t.Fatal("dirty flags not cleared after flush")
		}
	})

	reloaded, _, err := autosave.Load(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, _ := reloaded.Page("1")
	if p.Body != "Hello\n" {
		t.Fatalf("body on disk=%q, want %q", p.Body, "Hello\n")
	}

	// Flushes from the same manager do not conflict with themselves.
	if err := mgr.Edit(setBody("1", "Hello again")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if err := mgr.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
}

func Test_Manager_Failed_Edit_Leaves_State_Clean(t *testing.T) {
	t.Parallel()

	mgr, err := autosave.Open(fs.NewReal(), writeTranscript(t, original))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = mgr.Edit(setBody("missing", "x"))
	if !errors.Is(err, transcript.ErrUnknownPage) {
		t.Fatalf("Edit err=%v, want ErrUnknownPage", err)
	}

	if mgr.State() != autosave.StateClean {
		t.Fatalf("state=%s, want clean", mgr.State())
	}
}

func Test_Manager_Edit_Discards_Partial_Changes_When_Fn_Fails(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)

	mgr, err := autosave.Open(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var before string

	mgr.View(func(doc *transcript.Document) { before = transcript.Serialize(doc) })

	err = mgr.Edit(func(doc *transcript.Document) error {
		if err := doc.SetHeader("changed\n"); err != nil {
			return err
		}

		return doc.SetBody("missing", "x")
	})
	if !errors.Is(err, transcript.ErrUnknownPage) {
		t.Fatalf("Edit err=%v, want ErrUnknownPage", err)
	}

	var after string

	mgr.View(func(doc *transcript.Document) {
		after = transcript.Serialize(doc)

		if doc.IsDirty() {
			t.Error("document dirty after failed edit")
		}
	})

	if after != before {
		t.Fatalf("failed edit changed document:\n%s", cmp.Diff(before, after))
	}

	wrote, err := mgr.FlushIfDirty()
	if wrote || err != nil {
		t.Fatalf("FlushIfDirty = (%v, %v), want (false, nil)", wrote, err)
	}

	if got := readFile(t, path); got != original {
		t.Fatalf("file changed:\n%s", cmp.Diff(original, got))
	}
}

func Test_Manager_MarkDirty_Rewrites_File_In_Canonical_Form(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, "+++\n# scanned twice\npage = 'x'\n+++\nbody\n<<<>>>\n")

	mgr, err := autosave.Open(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mgr.MarkDirty()

	wrote, err := mgr.FlushIfDirty()
	if !wrote || err != nil {
		t.Fatalf("FlushIfDirty = (%v, %v), want (true, nil)", wrote, err)
	}

	want := "+++\npage = \"x\"\n+++\nbody\n<<<>>>\n"
	if got := readFile(t, path); got != want {
		t.Fatalf("canonical rewrite mismatch:\n%s", cmp.Diff(want, got))
	}
}

func Test_Manager_Enters_Conflict_And_Resolves_With_Reload(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)

	mgr, err := autosave.Open(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := mgr.Edit(setBody("1", "mine")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	external := "+++\npage = \"9\"\n+++\ntheirs\n<<<>>>\n"
	if err := os.WriteFile(path, []byte(external), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	if err := mgr.Flush(); !errors.Is(err, autosave.ErrExternalModification) {
		t.Fatalf("Flush err=%v, want ErrExternalModification", err)
	}

	if mgr.State() != autosave.StateConflict || mgr.Conflict() == nil {
		t.Fatalf("state=%s conflict=%v, want conflict", mgr.State(), mgr.Conflict())
	}

	if _, err := mgr.FlushIfDirty(); !errors.Is(err, autosave.ErrExternalModification) {
		t.Fatalf("FlushIfDirty in conflict err=%v, want ErrExternalModification", err)
	}

	if got := readFile(t, path); got != external {
		t.Fatal("external content overwritten during conflict")
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if mgr.State() != autosave.StateClean {
		t.Fatalf("state=%s, want clean", mgr.State())
	}

	mgr.View(func(doc *transcript.Document) {
		if _, ok := doc.Page("9"); !ok || doc.Len() != 1 {
			t.Fatalf("reloaded document does not match disk: len=%d", doc.Len())
		}
	})
}

func Test_Manager_Overwrite_Keeps_Local_Edits_When_Conflicted(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)

	mgr, err := autosave.Open(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := mgr.Edit(setBody("1", "mine")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if err := os.WriteFile(path, []byte("garbage that is not a transcript\n"), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	if err := mgr.Flush(); !errors.Is(err, autosave.ErrExternalModification) {
		t.Fatalf("Flush err=%v, want ErrExternalModification", err)
	}

	if err := mgr.Overwrite(); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}

	if mgr.State() != autosave.StateClean {
		t.Fatalf("state=%s, want clean", mgr.State())
	}

	doc, _, err := autosave.Load(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Load after overwrite: %v", err)
	}

	p, _ := doc.Page("1")
	if p.Body != "mine\n" {
		t.Fatalf("body=%q, want local edit", p.Body)
	}
}

func Test_Manager_Keeps_Dirty_State_When_Write_Fails_And_Retry_Succeeds(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)
	faulty := fs.NewFaulty(fs.NewReal(), fs.Fault{Op: fs.FaultOpFileSync, Mode: fs.FaultFail})

	mgr, err := autosave.Open(faulty, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := mgr.Edit(setBody("1", "mine")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	_, err = mgr.FlushIfDirty()
	if !errors.Is(err, autosave.ErrIO) || !fs.IsInjected(err) {
		t.Fatalf("FlushIfDirty err=%v, want injected ErrIO", err)
	}

	if mgr.State() != autosave.StateDirty {
		t.Fatalf("state=%s, want dirty", mgr.State())
	}

	mgr.View(func(doc *transcript.Document) {
		if diff := cmp.Diff([]string{"1"}, doc.DirtyPages()); diff != "" {
			t.Fatalf("dirty pages lost (-want +got):\n%s", diff)
		}
	})

	if got := readFile(t, path); got != original {
		t.Fatal("failed flush changed the file")
	}

	wrote, err := mgr.FlushIfDirty()
	if !wrote || err != nil {
		t.Fatalf("retry = (%v, %v), want (true, nil)", wrote, err)
	}

	if mgr.State() != autosave.StateClean {
		t.Fatalf("state=%s, want clean", mgr.State())
	}
}

func Test_Flush_Leaves_Original_Intact_When_Crashing_Before_Rename(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)
	faulty := fs.NewFaulty(fs.NewReal(), fs.Fault{
		Op:   fs.FaultOpRename,
		Base: filepath.Base(path),
		Mode: fs.FaultCrashBefore,
	})

	mgr, err := autosave.Open(faulty, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := mgr.Edit(setBody("1", "half written?")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if err := mgr.Flush(); !errors.Is(err, fs.ErrCrashed) {
		t.Fatalf("Flush err=%v, want ErrCrashed", err)
	}

	if got := readFile(t, path); got != original {
		t.Fatalf("original changed by crashed flush:\n%s", cmp.Diff(original, got))
	}

	if mgr.State() != autosave.StateDirty {
		t.Fatalf("state=%s, want dirty", mgr.State())
	}
}

func Test_Flush_Leaves_New_Content_When_Crashing_After_Rename(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)
	faulty := fs.NewFaulty(fs.NewReal(), fs.Fault{
		Op:   fs.FaultOpRename,
		Base: filepath.Base(path),
		Mode: fs.FaultCrashAfter,
	})

	mgr, err := autosave.Open(faulty, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := mgr.Edit(setBody("1", "complete")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	var want string

	mgr.View(func(doc *transcript.Document) {
		want = transcript.Serialize(doc)
	})

	if err := mgr.Flush(); !errors.Is(err, fs.ErrCrashed) {
		t.Fatalf("Flush err=%v, want ErrCrashed", err)
	}

	if got := readFile(t, path); got != want {
		t.Fatalf("disk does not hold the new content:\n%s", cmp.Diff(want, got))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want only the transcript", len(entries))
	}
}

func Test_Manager_Records_Write_When_Only_Dir_Sync_Fails(t *testing.T) {
	t.Parallel()

	path := writeTranscript(t, original)
	dir := filepath.Dir(path)

	// Only the directory handle has the directory's base name.
	faulty := fs.NewFaulty(fs.NewReal(), fs.Fault{
		Op:   fs.FaultOpFileSync,
		Base: filepath.Base(dir),
		Mode: fs.FaultFail,
	})

	mgr, err := autosave.Open(faulty, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := mgr.Edit(setBody("1", "durable?")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	wrote, err := mgr.FlushIfDirty()
	if !wrote || !errors.Is(err, fs.ErrAtomicWriteDirSync) {
		t.Fatalf("FlushIfDirty = (%v, %v), want (true, ErrAtomicWriteDirSync)", wrote, err)
	}

	if mgr.State() != autosave.StateClean {
		t.Fatalf("state=%s, want clean", mgr.State())
	}

	if !mgr.Fingerprint().Equal(autosave.FingerprintOf([]byte(readFile(t, path)))) {
		t.Fatal("fingerprint does not match written content")
	}

	// The next flush must not report a conflict against our own write.
	if err := mgr.Edit(setBody("1", "again")); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if err := mgr.Flush(); err != nil {
		t.Fatalf("Flush after dir sync failure: %v", err)
	}
}
