package transcript

import "strings"

// lineMark separates physical lines of the scan inside a transcribed body.
const lineMark = "|"

// Stats summarizes transcription progress of a document.
type Stats struct {
	Pages       int `json:"pages"`
	Transcribed int `json:"transcribed"`
	Empty       int `json:"empty"`

	// LineMarks counts "|" line separators across all bodies.
	LineMarks int `json:"line_marks"`

	// Annotations lists every page's annotations in reading order.
	Annotations []map[string]any `json:"annotations"`
}

// ComputeStats returns progress information for doc.
func ComputeStats(doc *Document) Stats {
	st := Stats{Pages: len(doc.pages), Annotations: make([]map[string]any, 0, len(doc.pages))}

	for _, p := range doc.pages {
		if strings.TrimSpace(p.body) == "" {
			st.Empty++
		} else {
			st.Transcribed++
		}

		st.LineMarks += strings.Count(p.body, lineMark)
		st.Annotations = append(st.Annotations, p.ann.Map())
	}

	return st
}
