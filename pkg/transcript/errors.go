package transcript

import (
	"errors"
	"fmt"
)

// Errors returned by Document mutators and annotation accessors.
var (
	ErrUnknownPage     = errors.New("unknown page")
	ErrDuplicatePageID = errors.New("duplicate page id")
	ErrMissingPageID   = fmt.Errorf("%w: page", ErrMissingRequiredKey)
	ErrInvalidPageID   = errors.New("invalid page id")
	ErrInvalidKey      = errors.New("invalid annotation key")
	ErrInvalidValue    = errors.New("invalid annotation value")
	ErrMarkerInBody    = errors.New("text contains a block marker line")
	ErrScalarType      = errors.New("annotation type mismatch")
)

// Sentinels matched by [FormatError] through errors.Is.
var (
	ErrUnterminatedBlock  = errors.New("unterminated block")
	ErrAnnotationSyntax   = errors.New("annotation syntax error")
	ErrMissingRequiredKey = errors.New("missing required key")
	ErrUnexpectedContent  = errors.New("unexpected content")
)

// FormatErrorKind classifies parse failures.
type FormatErrorKind uint8

// FormatErrorKind values.
const (
	KindUnterminatedBlock FormatErrorKind = iota + 1
	KindDuplicatePageID
	KindAnnotationSyntax
	KindMissingRequiredKey
	KindInvalidPageID
	KindUnexpectedContent
)

func (k FormatErrorKind) String() string {
	switch k {
	case KindUnterminatedBlock:
		return "UnterminatedBlock"
	case KindDuplicatePageID:
		return "DuplicatePageId"
	case KindAnnotationSyntax:
		return "AnnotationSyntaxError"
	case KindMissingRequiredKey:
		return "MissingRequiredKey"
	case KindInvalidPageID:
		return "InvalidPageId"
	case KindUnexpectedContent:
		return "UnexpectedContent"
	default:
		return fmt.Sprintf("FormatErrorKind(%d)", uint8(k))
	}
}

// FormatError reports why a document could not be parsed.
//
// A parse either succeeds completely or returns a FormatError; no partial
// document is produced. Use [errors.As] for the location and [errors.Is]
// with the package sentinels for the kind:
//
//	var fe *transcript.FormatError
//	if errors.As(err, &fe) {
//	    fmt.Printf("line %d: %s\n", fe.Line, fe.Msg)
//	}
//	if errors.Is(err, transcript.ErrDuplicatePageID) { ... }
type FormatError struct {
	Kind FormatErrorKind

	// Line is the 1-based line the error refers to. For unterminated blocks
	// it is the line that opened the block.
	Line int

	// PrevLine is the line of the first occurrence for duplicate page ids.
	PrevLine int

	// PageID is set when the error concerns a specific page.
	PageID string

	Msg string
}

func (e *FormatError) Error() string {
	if e == nil {
		return ""
	}

	msg := fmt.Sprintf("line %d: %s", e.Line, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}

	return msg
}

// Unwrap returns the sentinel for e.Kind.
func (e *FormatError) Unwrap() error {
	if e == nil {
		return nil
	}

	switch e.Kind {
	case KindUnterminatedBlock:
		return ErrUnterminatedBlock
	case KindDuplicatePageID:
		return ErrDuplicatePageID
	case KindAnnotationSyntax:
		return ErrAnnotationSyntax
	case KindMissingRequiredKey:
		return ErrMissingRequiredKey
	case KindInvalidPageID:
		return ErrInvalidPageID
	case KindUnexpectedContent:
		return ErrUnexpectedContent
	default:
		return nil
	}
}

func formatErr(kind FormatErrorKind, line int, format string, args ...any) *FormatError {
	return &FormatError{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...)}
}
