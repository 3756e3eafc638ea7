// Package transcript reads and writes transcription documents.
//
// A transcription document is plain text made of an optional header block
// followed by pages. Each page carries a TOML annotation record and the
// transcribed body text:
//
//	===HEADER===
//	Sample doc
//	===END HEADER===
//	+++
//	page = "1"
//	scan = 1
//	notes = "blank page"
//	+++
//	<<<>>>
//	+++
//	page = "2"
//	scan = 2
//	+++
//	Hello world.
//	<<<>>>
//
// Markers must be alone on their line. Annotation lines are single TOML
// "key = value" pairs whose values are strings, integers or booleans. The
// "page" key is required and identifies the page within the document.
//
// [Parse] turns text into a [*Document], [Serialize] turns a Document back
// into canonical text. For every Document built through its mutators,
// Parse(Serialize(doc)) is structurally equal to doc. Byte equality with a
// hand-written file is not guaranteed: quoting and comment lines are
// normalized.
//
// A Document is not safe for concurrent use. The autosave package serializes
// access to it.
package transcript
