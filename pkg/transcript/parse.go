package transcript

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Marker lines. They must be alone on their line; a single trailing "\r"
// is tolerated.
const (
	markerHeaderStart = "===HEADER==="
	markerHeaderEnd   = "===END HEADER==="
	markerAnnotation  = "+++"
	markerPageEnd     = "<<<>>>"
)

type parseState uint8

const (
	stateInit parseState = iota
	stateHeader
	stateBetween
	stateAnnotation
	stateBody
)

type parser struct {
	doc   *Document
	state parseState

	// blockLine is the line that opened the current block.
	blockLine int

	text        strings.Builder
	ann         *Annotations
	pageKeyLine int
	pageID      string

	// seen maps page ids to the line of their opening marker.
	seen map[string]int
}

// Parse converts document text into a Document.
//
// It fails with a [*FormatError] on malformed input and never returns a
// partially parsed Document. The returned Document has no dirty pages.
func Parse(text string) (*Document, error) {
	p := &parser{doc: New(), seen: make(map[string]int)}

	text = strings.TrimPrefix(text, "\ufeff")

	lineNo := 0

	for line := range strings.Lines(text) {
		lineNo++

		err := p.step(lineNo, strings.TrimSuffix(line, "\n"))
		if err != nil {
			return nil, err
		}
	}

	err := p.finish()
	if err != nil {
		return nil, err
	}

	return p.doc, nil
}

// ParseBytes is [Parse] for byte slices.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(string(data))
}

func (p *parser) step(lineNo int, line string) error {
	marker := strings.TrimSuffix(line, "\r")

	switch p.state {
	case stateInit, stateBetween:
		return p.stepOutside(lineNo, marker)
	case stateHeader:
		if marker == markerHeaderEnd {
			p.doc.header = p.text.String()
			p.doc.hasHeader = true
			p.state = stateBetween

			return nil
		}

		p.appendText(line)

		return nil
	case stateAnnotation:
		if marker == markerAnnotation {
			return p.closeAnnotation()
		}

		return p.annotationLine(lineNo, line)
	case stateBody:
		if marker == markerPageEnd {
			p.closePage()

			return nil
		}

		p.appendText(line)

		return nil
	}

	return fmt.Errorf("impossible parser state %d", p.state)
}

func (p *parser) stepOutside(lineNo int, marker string) error {
	switch {
	case strings.TrimSpace(marker) == "":
		return nil
	case marker == markerAnnotation:
		p.state = stateAnnotation
		p.blockLine = lineNo
		p.ann = &Annotations{}
		p.pageKeyLine = 0

		return nil
	case marker == markerHeaderStart && p.state == stateInit:
		p.state = stateHeader
		p.blockLine = lineNo
		p.text.Reset()

		return nil
	case marker == markerHeaderStart:
		return formatErr(KindUnexpectedContent, lineNo, "header block must be the first block and appear once")
	default:
		return formatErr(KindUnexpectedContent, lineNo, "text outside of a header or page block: %q", marker)
	}
}

func (p *parser) annotationLine(lineNo int, line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}

	key, value, err := decodeAnnotation(strings.TrimSuffix(line, "\r"))
	if err != nil {
		return formatErr(KindAnnotationSyntax, lineNo, "%v", err)
	}

	if _, dup := p.ann.Get(key); dup {
		return formatErr(KindAnnotationSyntax, lineNo, "duplicate key %q", key)
	}

	if key == KeyPage {
		p.pageKeyLine = lineNo
	}

	p.ann.Set(key, value)

	return nil
}

func (p *parser) closeAnnotation() error {
	if p.ann.Len() == 0 {
		return formatErr(KindMissingRequiredKey, p.blockLine, "empty annotation record, %q is required", KeyPage)
	}

	v, ok := p.ann.Get(KeyPage)
	if !ok {
		return formatErr(KindMissingRequiredKey, p.blockLine, "annotation record has no %q key", KeyPage)
	}

	id, err := pageIDFromScalar(v)
	if err != nil {
		return formatErr(KindInvalidPageID, p.pageKeyLine, "%v", err)
	}

	if prev, dup := p.seen[id]; dup {
		return &FormatError{
			Kind:     KindDuplicatePageID,
			Line:     p.blockLine,
			PrevLine: prev,
			PageID:   id,
			Msg:      fmt.Sprintf("page %q already defined at line %d", id, prev),
		}
	}

	p.seen[id] = p.blockLine
	p.pageID = id
	p.state = stateBody
	p.text.Reset()

	return nil
}

func (p *parser) closePage() {
	p.doc.insert(-1, &page{id: p.pageID, ann: p.ann, body: p.text.String()})
	p.ann = nil
	p.state = stateBetween
}

func (p *parser) appendText(line string) {
	p.text.WriteString(line)
	p.text.WriteByte('\n')
}

func (p *parser) finish() error {
	switch p.state {
	case stateHeader:
		return formatErr(KindUnterminatedBlock, p.blockLine, "header block has no %q line", markerHeaderEnd)
	case stateAnnotation:
		return formatErr(KindUnterminatedBlock, p.blockLine, "annotation record has no closing %q line", markerAnnotation)
	case stateBody:
		return &FormatError{
			Kind:   KindUnterminatedBlock,
			Line:   p.blockLine,
			PageID: p.pageID,
			Msg:    fmt.Sprintf("page %q has no closing %q line", p.pageID, markerPageEnd),
		}
	default:
		return nil
	}
}

// decodeAnnotation decodes a single TOML "key = value" line. Only string,
// integer and boolean values are accepted.
func decodeAnnotation(line string) (string, Scalar, error) {
	var record map[string]any

	_, err := toml.Decode(line, &record)
	if err != nil {
		return "", Scalar{}, err
	}

	if len(record) != 1 {
		return "", Scalar{}, fmt.Errorf("expected one key = value pair, got %d", len(record))
	}

	for key, raw := range record {
		switch v := raw.(type) {
		case string:
			return key, StringScalar(v), nil
		case int64:
			return key, IntScalar(v), nil
		case bool:
			return key, BoolScalar(v), nil
		case map[string]any:
			return "", Scalar{}, fmt.Errorf("key %q: tables and dotted keys are not supported", key)
		default:
			return "", Scalar{}, fmt.Errorf("key %q: unsupported %T value, use a string, integer or boolean", key, raw)
		}
	}

	panic("unreachable")
}
