package transcript_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/scribe/pkg/transcript"
)

func Test_Document_AddPage_Inserts_At_Position_And_Marks_Dirty(t *testing.T) {
	t.Parallel()

	doc := transcript.New()

	for _, id := range []string{"1", "3"} {
		if err := doc.AddPage(-1, transcript.NewAnnotations(id), ""); err != nil {
			t.Fatalf("AddPage(%s): %v", id, err)
		}
	}

	doc.ClearDirty()

	if err := doc.AddPage(1, annotations("page", "2", "scan", 2), "text"); err != nil {
		t.Fatalf("AddPage(2): %v", err)
	}

	var ids []string
	for _, p := range doc.Pages() {
		ids = append(ids, p.ID)
	}

	if diff := cmp.Diff([]string{"1", "2", "3"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"2"}, doc.DirtyPages()); diff != "" {
		t.Fatalf("dirty pages mismatch (-want +got):\n%s", diff)
	}

	p, _ := doc.Page("2")
	if p.Body != "text\n" {
		t.Fatalf("body=%q, want normalized %q", p.Body, "text\n")
	}
}

func Test_Document_Rejects_Duplicate_Ids_And_Leaves_State_Unchanged(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, sampleDoc)
	before := view(doc)

	err := doc.AddPage(-1, transcript.NewAnnotations("1"), "again")
	if !errors.Is(err, transcript.ErrDuplicatePageID) {
		t.Fatalf("AddPage err=%v, want ErrDuplicatePageID", err)
	}

	err = doc.SetAnnotation("2", transcript.KeyPage, transcript.StringScalar("1"))
	if !errors.Is(err, transcript.ErrDuplicatePageID) {
		t.Fatalf("SetAnnotation err=%v, want ErrDuplicatePageID", err)
	}

	err = doc.SetAnnotation("2", transcript.KeyPage, transcript.IntScalar(1))
	if !errors.Is(err, transcript.ErrDuplicatePageID) {
		t.Fatalf("SetAnnotation(int) err=%v, want ErrDuplicatePageID", err)
	}

	if diff := cmp.Diff(before, view(doc)); diff != "" {
		t.Fatalf("document changed after failed mutation (-want +got):\n%s", diff)
	}

	if doc.IsDirty() {
		t.Fatal("failed mutations must not mark the document dirty")
	}
}

func Test_Document_Mutators_Return_ErrUnknownPage_When_Id_Missing(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, sampleDoc)

	checks := map[string]error{
		"SetBody":          doc.SetBody("9", "x"),
		"SetAnnotation":    doc.SetAnnotation("9", "notes", transcript.StringScalar("x")),
		"DeleteAnnotation": doc.DeleteAnnotation("9", "notes"),
		"RemovePage":       doc.RemovePage("9"),
	}

	for name, err := range checks {
		if !errors.Is(err, transcript.ErrUnknownPage) {
			t.Errorf("%s err=%v, want ErrUnknownPage", name, err)
		}
	}
}

func Test_Document_SetAnnotation_Renames_Page_When_Page_Key_Changes(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, sampleDoc)

	if err := doc.SetAnnotation("2", transcript.KeyPage, transcript.StringScalar("2r")); err != nil {
		t.Fatalf("SetAnnotation: %v", err)
	}

	if _, ok := doc.Page("2"); ok {
		t.Fatal("old id still resolves")
	}

	p, ok := doc.Page("2r")
	if !ok {
		t.Fatal("new id does not resolve")
	}

	if !p.Dirty || doc.Index("2r") != 1 {
		t.Fatalf("dirty=%v index=%d, want dirty page at index 1", p.Dirty, doc.Index("2r"))
	}

	if err := doc.SetAnnotation("2r", transcript.KeyPage, transcript.BoolScalar(true)); !errors.Is(err, transcript.ErrInvalidPageID) {
		t.Fatalf("bool page err=%v, want ErrInvalidPageID", err)
	}

	if err := doc.DeleteAnnotation("2r", transcript.KeyPage); !errors.Is(err, transcript.ErrMissingRequiredKey) {
		t.Fatalf("delete page err=%v, want ErrMissingRequiredKey", err)
	}
}

func Test_Document_RemovePage_Keeps_Relative_Order(t *testing.T) {
	t.Parallel()

	doc := transcript.New()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := doc.AddPage(-1, transcript.NewAnnotations(id), ""); err != nil {
			t.Fatalf("AddPage: %v", err)
		}
	}

	doc.ClearDirty()

	if err := doc.RemovePage("b"); err != nil {
		t.Fatalf("RemovePage: %v", err)
	}

	var ids []string
	for _, p := range doc.Pages() {
		ids = append(ids, p.ID)
	}

	if diff := cmp.Diff([]string{"a", "c", "d"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	if !doc.IsDirty() {
		t.Fatal("removal must mark the document dirty")
	}

	if len(doc.DirtyPages()) != 0 {
		t.Fatalf("dirty pages=%v, want none", doc.DirtyPages())
	}
}

func Test_Document_Rejects_Text_That_Would_Close_A_Block(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, sampleDoc)

	if err := doc.SetBody("2", "one\n<<<>>>\ntwo\n"); !errors.Is(err, transcript.ErrMarkerInBody) {
		t.Fatalf("SetBody err=%v, want ErrMarkerInBody", err)
	}

	if err := doc.SetHeader("x\n===END HEADER===\n"); !errors.Is(err, transcript.ErrMarkerInBody) {
		t.Fatalf("SetHeader err=%v, want ErrMarkerInBody", err)
	}

	// Other markers are ordinary text inside a body.
	if err := doc.SetBody("2", "+++\n===HEADER===\n"); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
}

func Test_Document_Snapshots_Do_Not_Alias_State(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, sampleDoc)

	p, _ := doc.Page("1")
	p.Annotations.Set("notes", transcript.StringScalar("changed"))
	p.Body = "changed"

	again, _ := doc.Page("1")
	if notes, _ := again.Annotations.Notes(); notes != "blank page" || again.Body != "" {
		t.Fatalf("snapshot mutation leaked: notes=%q body=%q", notes, again.Body)
	}
}
