package transcript

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Page is a read-only snapshot of one page. Changing it does not affect the
// Document; use the Document mutators instead.
type Page struct {
	ID          string
	Annotations *Annotations
	Body        string

	// Dirty is set by every mutation of the page and cleared by a
	// successful flush. It is never persisted.
	Dirty bool
}

type page struct {
	id    string
	ann   *Annotations
	body  string
	dirty bool
}

func (p *page) snapshot() Page {
	return Page{ID: p.id, Annotations: p.ann.Clone(), Body: p.body, Dirty: p.dirty}
}

// Document is the in-memory form of a transcription file: an optional
// header and an ordered list of pages with unique ids.
//
// All state changes go through the mutators, which keep ids unique and set
// dirty flags. A failing mutator leaves the Document unchanged.
type Document struct {
	header    string
	hasHeader bool
	pages     []*page
	byID      map[string]*page

	// dirty covers changes not attached to a surviving page: header edits
	// and removals.
	dirty bool
}

// New returns an empty Document without a header.
func New() *Document {
	return &Document{byID: make(map[string]*page)}
}

// Header returns the header text ("" if none).
func (d *Document) Header() string {
	return d.header
}

// HasHeader reports whether the document has an explicit header block.
func (d *Document) HasHeader() bool {
	return d.hasHeader
}

// Len returns the number of pages.
func (d *Document) Len() int {
	return len(d.pages)
}

// Pages returns snapshots of all pages in reading order.
func (d *Document) Pages() []Page {
	out := make([]Page, len(d.pages))
	for i, p := range d.pages {
		out[i] = p.snapshot()
	}

	return out
}

// Page returns a snapshot of the page with the given id.
func (d *Document) Page(id string) (Page, bool) {
	p, ok := d.byID[id]
	if !ok {
		return Page{}, false
	}

	return p.snapshot(), true
}

// Index returns the position of the page with the given id, or -1.
func (d *Document) Index(id string) int {
	for i, p := range d.pages {
		if p.id == id {
			return i
		}
	}

	return -1
}

// SetHeader replaces the header and marks the document as having one.
// Non-empty text is normalized to end with a newline.
func (d *Document) SetHeader(text string) error {
	if containsMarkerLine(text, markerHeaderEnd) {
		return fmt.Errorf("%w: %s", ErrMarkerInBody, markerHeaderEnd)
	}

	d.header = normalizeText(text)
	d.hasHeader = true
	d.dirty = true

	return nil
}

// AddPage inserts a page at pos. A negative pos, or one at or past the end,
// appends. The annotations are copied.
func (d *Document) AddPage(pos int, ann *Annotations, body string) error {
	id, err := ann.PageID()
	if err != nil {
		return err
	}

	if _, exists := d.byID[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePageID, id)
	}

	for k, v := range ann.All {
		if err := validateEntry(k, v); err != nil {
			return err
		}
	}

	if containsMarkerLine(body, markerPageEnd) {
		return fmt.Errorf("%w: %s", ErrMarkerInBody, markerPageEnd)
	}

	p := &page{id: id, ann: ann.Clone(), body: normalizeText(body), dirty: true}
	d.insert(pos, p)

	return nil
}

// SetBody replaces the body of a page. Non-empty text is normalized to end
// with a newline.
func (d *Document) SetBody(id, text string) error {
	p, err := d.lookup(id)
	if err != nil {
		return err
	}

	if containsMarkerLine(text, markerPageEnd) {
		return fmt.Errorf("%w: %s", ErrMarkerInBody, markerPageEnd)
	}

	p.body = normalizeText(text)
	p.dirty = true

	return nil
}

// SetAnnotation stores key=value on a page. Setting "page" renames the page;
// the new id must be valid and not used by another page.
func (d *Document) SetAnnotation(id, key string, value Scalar) error {
	p, err := d.lookup(id)
	if err != nil {
		return err
	}

	if err := validateEntry(key, value); err != nil {
		return err
	}

	if key == KeyPage {
		newID, err := pageIDFromScalar(value)
		if err != nil {
			return err
		}

		if other, exists := d.byID[newID]; exists && other != p {
			return fmt.Errorf("%w: %s", ErrDuplicatePageID, newID)
		}

		delete(d.byID, p.id)
		p.id = newID
		d.byID[newID] = p
	}

	p.ann.Set(key, value)
	p.dirty = true

	return nil
}

// DeleteAnnotation removes key from a page. The "page" key cannot be removed.
func (d *Document) DeleteAnnotation(id, key string) error {
	p, err := d.lookup(id)
	if err != nil {
		return err
	}

	if key == KeyPage {
		return ErrMissingPageID
	}

	if _, ok := p.ann.Get(key); !ok {
		return nil
	}

	p.ann.Delete(key)
	p.dirty = true

	return nil
}

// RemovePage deletes a page, keeping the order of the others.
func (d *Document) RemovePage(id string) error {
	if _, err := d.lookup(id); err != nil {
		return err
	}

	idx := d.Index(id)
	d.pages = append(d.pages[:idx], d.pages[idx+1:]...)
	delete(d.byID, id)
	d.dirty = true

	return nil
}

// IsDirty reports whether anything changed since the last [Document.ClearDirty].
func (d *Document) IsDirty() bool {
	if d.dirty {
		return true
	}

	for _, p := range d.pages {
		if p.dirty {
			return true
		}
	}

	return false
}

// DirtyPages returns the ids of dirty pages in reading order.
func (d *Document) DirtyPages() []string {
	var ids []string

	for _, p := range d.pages {
		if p.dirty {
			ids = append(ids, p.id)
		}
	}

	return ids
}

// ClearDirty resets all dirty flags. Only the flush path calls this, after
// the serialized state has reached disk.
func (d *Document) ClearDirty() {
	d.dirty = false

	for _, p := range d.pages {
		p.dirty = false
	}
}

// Clone returns a deep copy, including dirty flags.
func (d *Document) Clone() *Document {
	out := New()
	out.header = d.header
	out.hasHeader = d.hasHeader
	out.dirty = d.dirty

	for _, p := range d.pages {
		cp := &page{id: p.id, ann: p.ann.Clone(), body: p.body, dirty: p.dirty}
		out.pages = append(out.pages, cp)
		out.byID[cp.id] = cp
	}

	return out
}

// Equal reports structural equality: header, header presence, and pages
// (ids, annotations in order, bodies) in the same order. Dirty flags are
// ignored.
func (d *Document) Equal(other *Document) bool {
	if d.header != other.header || d.hasHeader != other.hasHeader || len(d.pages) != len(other.pages) {
		return false
	}

	for i, p := range d.pages {
		o := other.pages[i]
		if p.id != o.id || p.body != o.body || !p.ann.Equal(o.ann) {
			return false
		}
	}

	return true
}

func (d *Document) lookup(id string) (*page, error) {
	p, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}

	return p, nil
}

func (d *Document) insert(pos int, p *page) {
	if d.byID == nil {
		d.byID = make(map[string]*page)
	}

	if pos < 0 || pos >= len(d.pages) {
		d.pages = append(d.pages, p)
	} else {
		d.pages = append(d.pages, nil)
		copy(d.pages[pos+1:], d.pages[pos:])
		d.pages[pos] = p
	}

	d.byID[p.id] = p
}

// validateEntry rejects entries that would not survive a TOML round-trip.
func validateEntry(key string, value Scalar) error {
	if key == "" || !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	if value.Kind() == ScalarString && !utf8.ValidString(value.Text()) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidValue, key)
	}

	return nil
}

func normalizeText(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}

	return text + "\n"
}

func containsMarkerLine(text, marker string) bool {
	for line := range strings.SplitSeq(text, "\n") {
		if strings.TrimSuffix(line, "\r") == marker {
			return true
		}
	}

	return false
}
