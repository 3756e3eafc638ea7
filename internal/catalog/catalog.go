// Package catalog describes which documents exist, where their scans and
// transcripts live, and how far each transcription has progressed.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/scribe/pkg/fs"
)

// Error variables for catalog operations.
var (
	ErrCatalogInvalid   = errors.New("invalid catalog")
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyID          = errors.New("document id cannot be empty")
	ErrDuplicateID      = errors.New("duplicate document id")
	ErrInvalidID        = errors.New("invalid document id")
	ErrPathEscapes      = errors.New("path leaves the repository")
)

// ValidateID checks that id can name a file in the work directory: it must
// be non-empty, contain no path separator and not be "." or "..".
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}

	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return nil
}

// checkLocal rejects absolute paths and paths that climb out of their base.
func checkLocal(field, path string) error {
	if path == "" || filepath.IsLocal(filepath.FromSlash(path)) {
		return nil
	}

	return fmt.Errorf("%w: %s %q", ErrPathEscapes, field, path)
}

// Document is one catalog entry. Source and Transcript are relative to the
// repository root.
type Document struct {
	ID         string `json:"id"                   yaml:"id"`
	Title      string `json:"title,omitempty"      yaml:"title,omitempty"`
	Source     string `json:"source,omitempty"     yaml:"source,omitempty"`
	Transcript string `json:"transcript,omitempty" yaml:"transcript,omitempty"`
}

// Catalog is the ordered list of known documents.
type Catalog struct {
	Documents []Document `json:"documents" yaml:"documents"`

	byID map[string]int
}

// New builds a catalog from docs, rejecting empty and duplicate ids.
func New(docs ...Document) (*Catalog, error) {
	return index(&Catalog{Documents: docs})
}

// Load reads the catalog at path. Files ending in .yaml or .yml are YAML,
// anything else is JSONC. A missing file is an empty catalog.
func Load(fsys fs.FS, path string) (*Catalog, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Catalog{byID: map[string]int{}}, nil
		}

		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var cat *Catalog

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cat, err = ParseYAML(data)
	default:
		cat, err = ParseJSON(data)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cat, nil
}

// ParseJSON parses a JSONC catalog.
func ParseJSON(data []byte) (*Catalog, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSONC: %w", ErrCatalogInvalid, err)
	}

	var cat Catalog

	err = json.Unmarshal(standardized, &cat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogInvalid, err)
	}

	return index(&cat)
}

// ParseYAML parses a YAML catalog with the same shape as the JSON one.
func ParseYAML(data []byte) (*Catalog, error) {
	var cat Catalog

	err := yaml.Unmarshal(data, &cat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogInvalid, err)
	}

	return index(&cat)
}

func index(cat *Catalog) (*Catalog, error) {
	cat.byID = make(map[string]int, len(cat.Documents))

	for i, doc := range cat.Documents {
		if err := ValidateID(doc.ID); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}

		if err := errors.Join(checkLocal("source", doc.Source), checkLocal("transcript", doc.Transcript)); err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i+1, doc.ID, err)
		}

		if prev, dup := cat.byID[doc.ID]; dup {
			return nil, fmt.Errorf("%w: %q (entries %d and %d)", ErrDuplicateID, doc.ID, prev+1, i+1)
		}

		cat.byID[doc.ID] = i
	}

	return cat, nil
}

// Lookup returns the document with the given id.
func (c *Catalog) Lookup(id string) (Document, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Document{}, false
	}

	return c.Documents[i], true
}

// Len returns the number of documents.
func (c *Catalog) Len() int {
	return len(c.Documents)
}
