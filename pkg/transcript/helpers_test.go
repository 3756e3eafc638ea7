package transcript_test

import (
	"testing"

	"github.com/calvinalkan/scribe/pkg/transcript"
)

type entryView struct {
	Key   string
	Value string
}

type pageView struct {
	ID          string
	Annotations []entryView
	Body        string
}

type docView struct {
	Header    string
	HasHeader bool
	Pages     []pageView
}

// view flattens a Document into plain values so cmp.Diff can print it.
func view(doc *transcript.Document) docView {
	out := docView{Header: doc.Header(), HasHeader: doc.HasHeader()}

	for _, p := range doc.Pages() {
		pv := pageView{ID: p.ID, Body: p.Body}

		for k, v := range p.Annotations.All {
			pv.Annotations = append(pv.Annotations, entryView{Key: k, Value: v.Kind().String() + ":" + v.Text()})
		}

		out.Pages = append(out.Pages, pv)
	}

	return out
}

func mustParse(t *testing.T, text string) *transcript.Document {
	t.Helper()

	doc, err := transcript.Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	return doc
}

func annotations(pairs ...any) *transcript.Annotations {
	a := &transcript.Annotations{}

	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)

		switch v := pairs[i+1].(type) {
		case string:
			a.Set(key, transcript.StringScalar(v))
		case int:
			a.Set(key, transcript.IntScalar(int64(v)))
		case bool:
			a.Set(key, transcript.BoolScalar(v))
		default:
			panic("unsupported annotation value")
		}
	}

	return a
}
