package transcript

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
)

// Serialize renders doc in canonical form.
//
// The header block is written when the header is non-empty or the document
// was parsed with one. Annotations are written in insertion order, one
// "key = value" line each; bodies are written verbatim.
func Serialize(doc *Document) string {
	var sb strings.Builder

	// A strings.Builder never fails and every Document state reachable
	// through the mutators encodes, so an error here is a bug.
	if err := Encode(&sb, doc); err != nil {
		panic(fmt.Sprintf("transcript: serialize: %v", err))
	}

	return sb.String()
}

// Encode writes the canonical form of doc to w.
func Encode(w io.Writer, doc *Document) error {
	var buf bytes.Buffer

	if doc.hasHeader || doc.header != "" {
		buf.WriteString(markerHeaderStart + "\n")
		buf.WriteString(doc.header)
		buf.WriteString(markerHeaderEnd + "\n")
	}

	for _, p := range doc.pages {
		buf.WriteString(markerAnnotation + "\n")

		for key, value := range p.ann.All {
			line, err := encodeAnnotation(key, value)
			if err != nil {
				return fmt.Errorf("page %s: %w", p.id, err)
			}

			buf.WriteString(line)
		}

		buf.WriteString(markerAnnotation + "\n")
		buf.WriteString(p.body)
		buf.WriteString(markerPageEnd + "\n")
	}

	_, err := w.Write(buf.Bytes())

	return err
}

// encodeAnnotation returns one "key = value\n" line using TOML quoting rules.
func encodeAnnotation(key string, value Scalar) (string, error) {
	var sb strings.Builder

	err := toml.NewEncoder(&sb).Encode(map[string]any{key: value.native()})
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", key, err)
	}

	return sb.String(), nil
}
