// Package autosave persists transcript Documents without losing edits and
// without clobbering changes made by other programs.
//
// [Load] and [Save] are the one-shot API. [Manager] wraps an open document
// with a CLEAN / DIRTY / FLUSHING / CONFLICT state machine:
//
//	mgr, err := autosave.Open(fsys, "chapter1.txt")
//	err = mgr.Edit(func(doc *transcript.Document) error {
//		return doc.SetBody("2", "Hello world.")
//	})
//	wrote, err := mgr.FlushIfDirty()
//
// Every flush compares the on-disk fingerprint with the one recorded at the
// last read or write. A mismatch moves the Manager to [StateConflict] and
// returns a [*ConflictError]; the caller resolves it with [Manager.Reload]
// (drop local edits) or [Manager.Overwrite] (keep them).
//
// Writes go through [fs.AtomicWriter]: a crash at any point leaves either
// the old or the new file on disk, never a mix.
package autosave
