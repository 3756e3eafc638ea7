package cli_test

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/calvinalkan/scribe/internal/cli"
	"github.com/calvinalkan/scribe/pkg/fs"
)

// script feeds session input one line per Read. A func step runs when the
// reader reaches it, which is after every earlier line was executed.
type script struct {
	steps []any
}

func (s *script) Read(p []byte) (int, error) {
	for len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]

		switch v := step.(type) {
		case func():
			v()
		case string:
			return copy(p, v+"\n"), nil
		}
	}

	return 0, io.EOF
}

func Test_Session_Applies_Edits_And_Saves_On_Quit(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	input := strings.Join([]string{
		"add 1 scan=1",
		`body 1 first | line\nsecond`,
		"append 1 third",
		"set 1 notes=ok",
		"add 2",
		"rm 2",
		"header Diary of A. B.",
		"status",
		"quit",
	}, "\n") + "\n"

	stdout, stderr, exitCode := c.RunWithInput(input, "session", "diary")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d\nstdout=%s\nstderr=%s", exitCode, stdout, stderr)
	}

	cli.AssertContains(t, stdout, "Type 'help' for commands.")
	cli.AssertContains(t, stdout, "state=dirty")
	cli.AssertNotContains(t, stdout, "error:")

	want := `===HEADER===
Diary of A. B.
===END HEADER===
+++
page = "1"
scan = 1
notes = "ok"
+++
first | line
second
third
<<<>>>
`
	if got := c.ReadFile("diary.txt"); got != want {
		t.Errorf("file=%q, want=%q", got, want)
	}
}

func Test_Session_Saves_When_Input_Ends(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	_, stderr, exitCode := c.RunWithInput("body 1 Blank verso\n", "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d stderr=%s", exitCode, stderr)
	}

	if got, want := c.MustRun("show", "letters", "1"), "Blank verso"; got != want {
		t.Errorf("body=%q, want=%q", got, want)
	}
}

func Test_Session_Reports_Errors_And_Continues(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	input := "frob\nadd 2\nrm 9\nset 1 novalue\nshow 2\npages\nquit\n"

	stdout, _, exitCode := c.RunWithInput(input, "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d", exitCode)
	}

	cli.AssertContains(t, stdout, "error: unknown command: frob")
	cli.AssertContains(t, stdout, "error: duplicate page id: 2")
	cli.AssertContains(t, stdout, "error: unknown page: 9")
	cli.AssertContains(t, stdout, "error: expected key=value")
	cli.AssertContains(t, stdout, "Dear sir | I write")

	if got := c.ReadFile("letters.txt"); got != lettersDoc {
		t.Errorf("file changed:\n%s", got)
	}
}

func Test_Session_Fails_When_Document_Locked(t *testing.T) {
	t.Parallel()

	c := newRepo(t)

	lock, err := fs.NewLocker(fs.NewReal()).TryLock(c.Path("letters.txt.lock"))
	if err != nil {
		t.Fatal(err)
	}

	defer func() { _ = lock.Close() }()

	_, stderr, exitCode := c.RunWithInput("body 1 x\nquit\n", "session", "letters")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "document is open in another scribe session")

	if got := c.ReadFile("letters.txt"); got != lettersDoc {
		t.Errorf("file changed:\n%s", got)
	}
}

func Test_Session_Overwrite_Resolves_Conflict_With_Local_Edits(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	external := "+++\npage = \"9\"\n+++\nedited elsewhere\n<<<>>>\n"

	in := &script{steps: []any{
		"body 1 mine",
		"save",
		func() { writeExternal(t, c.Path("letters.txt"), external) },
		"body 2 also mine",
		"save",
		"status",
		"overwrite",
		"quit",
	}}

	stdout, stderr, exitCode := c.RunWithInput(in, "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d\nstdout=%s\nstderr=%s", exitCode, stdout, stderr)
	}

	cli.AssertContains(t, stdout, "error: "+c.Path("letters.txt")+": external modification")
	cli.AssertContains(t, stdout, "state=conflict")
	cli.AssertContains(t, stdout, "saved over external changes")

	got := c.ReadFile("letters.txt")
	cli.AssertContains(t, got, "mine\n")
	cli.AssertContains(t, got, "also mine\n")
	cli.AssertNotContains(t, got, "edited elsewhere")
}

func Test_Session_Reload_Discards_Local_Edits_On_Conflict(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	external := "+++\npage = \"9\"\n+++\nedited elsewhere\n<<<>>>\n"

	in := &script{steps: []any{
		func() { writeExternal(t, c.Path("letters.txt"), external) },
		"body 1 mine",
		"save",
		"reload",
		"show 9",
		"quit",
	}}

	stdout, stderr, exitCode := c.RunWithInput(in, "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d\nstdout=%s\nstderr=%s", exitCode, stdout, stderr)
	}

	cli.AssertContains(t, stdout, "reloaded from disk")
	cli.AssertContains(t, stdout, "edited elsewhere")

	if got := c.ReadFile("letters.txt"); got != external {
		t.Errorf("file=%q, want=%q", got, external)
	}
}

func Test_Session_Refuses_First_Quit_While_In_Conflict(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	external := "+++\npage = \"9\"\n+++\n<<<>>>\n"

	in := &script{steps: []any{
		func() { writeExternal(t, c.Path("letters.txt"), external) },
		"body 1 mine",
		"save",
		"quit",
		"quit",
	}}

	stdout, stderr, exitCode := c.RunWithInput(in, "session", "letters")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "unresolved conflict")
	cli.AssertContains(t, stderr, "warning: local edits were discarded")

	if got := c.ReadFile("letters.txt"); got != external {
		t.Errorf("file=%q, want=%q", got, external)
	}
}

func Test_Session_Failed_Multi_Field_Set_Leaves_File_Unchanged(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	input := "set 1 notes=changed page=2\nset 1 scan=5 =bad\nunset 1 scan page\nstatus\nquit\n"

	stdout, stderr, exitCode := c.RunWithInput(input, "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d\nstdout=%s\nstderr=%s", exitCode, stdout, stderr)
	}

	cli.AssertContains(t, stdout, "error: duplicate page id: 2")
	cli.AssertContains(t, stdout, `error: expected key=value: "=bad"`)
	cli.AssertContains(t, stdout, "error: missing required key")
	cli.AssertContains(t, stdout, "state=clean")

	if got := c.ReadFile("letters.txt"); got != lettersDoc {
		t.Errorf("file changed:\n%s", got)
	}
}

func Test_Session_Autosaves_After_Delay_And_Pauses_On_Conflict(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	c.WriteFile(".scribe.json", `{"repo_path": ".", "autosave_delay": "20ms"}`)

	path := c.Path("letters.txt")
	external := "+++\npage = \"x\"\n+++\n<<<>>>\n"

	in := &script{steps: []any{
		"body 1 autosaved",
		func() { waitForContent(t, path, "autosaved\n") },
		func() { writeExternal(t, path, external) },
		"body 2 local only",
		func() {
			time.Sleep(200 * time.Millisecond)

			if got := readExternal(t, path); got != external {
				t.Errorf("autosave clobbered external change:\n%s", got)
			}
		},
		"status",
		"reload",
		"quit",
	}}

	stdout, stderr, exitCode := c.RunWithInput(in, "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d\nstdout=%s\nstderr=%s", exitCode, stdout, stderr)
	}

	cli.AssertContains(t, stdout, "state=conflict")
	cli.AssertContains(t, stderr, "autosave paused")

	if got := c.ReadFile("letters.txt"); got != external {
		t.Errorf("file=%q, want=%q", got, external)
	}
}

func Test_Session_Refuses_Quit_Again_On_Second_Conflict(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	path := c.Path("letters.txt")
	first := "+++\npage = \"9\"\n+++\n<<<>>>\n"
	second := "+++\npage = \"8\"\n+++\n<<<>>>\n"

	in := &script{steps: []any{
		func() { writeExternal(t, path, first) },
		"add 10",
		"save",
		"quit",
		"overwrite",
		func() { writeExternal(t, path, second) },
		"add 11",
		"save",
		"quit",
		"reload",
		"quit",
	}}

	stdout, stderr, exitCode := c.RunWithInput(in, "session", "letters")

	if exitCode != 0 {
		t.Fatalf("exitCode=%d\nstdout=%s\nstderr=%s", exitCode, stdout, stderr)
	}

	if got, want := strings.Count(stdout, "unresolved conflict"), 2; got != want {
		t.Errorf("refused quits=%d, want=%d\nstdout=%s", got, want, stdout)
	}

	if got := c.ReadFile("letters.txt"); got != second {
		t.Errorf("file=%q, want=%q", got, second)
	}
}

// waitForContent polls path until it contains want.
func waitForContent(t *testing.T, path, want string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(data), want) {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Errorf("%s never contained %q", path, want)
}

func readExternal(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("read %s: %v", path, err)
	}

	return string(data)
}

func writeExternal(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("external write: %v", err)
	}
}
