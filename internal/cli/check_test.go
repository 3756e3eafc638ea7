package cli_test

import (
	"testing"

	"github.com/calvinalkan/scribe/internal/cli"
)

func Test_Check_Reports_Valid_And_Invalid_Files(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	c.WriteFile("bad.txt", "+++\npage = \"1\"\nnotes = \"oops\n+++\n<<<>>>\n")
	c.WriteFile("dup.txt", "+++\npage = 1\n+++\n<<<>>>\n+++\npage = \"1\"\n+++\n<<<>>>\n")

	stdout, stderr, exitCode := c.Run("check", "letters.txt", "bad.txt", "dup.txt", "missing.txt")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stdout, "letters.txt: ok (2 pages)")
	cli.AssertContains(t, stderr, "bad.txt:3: AnnotationSyntaxError")
	cli.AssertContains(t, stderr, "dup.txt:5: DuplicatePageId")
	cli.AssertContains(t, stderr, "missing.txt: ")
	cli.AssertContains(t, stderr, "3 invalid transcript(s)")
}

func Test_Check_Fails_When_No_Path_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("check")

	cli.AssertContains(t, stderr, "at least one path is required")
}

func Test_Fmt_Rewrites_Non_Canonical_Transcript(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	c.WriteFile("letters.txt", "\n+++\n# first page\npage = '1'\nscan=1\n+++\nDear sir\n<<<>>>\n\n")

	stdout := c.MustRun("fmt", "letters")
	cli.AssertContains(t, stdout, "formatted")

	want := "+++\npage = \"1\"\nscan = 1\n+++\nDear sir\n<<<>>>\n"
	if got := c.ReadFile("letters.txt"); got != want {
		t.Errorf("file=%q, want=%q", got, want)
	}

	stdout = c.MustRun("fmt", "letters")
	cli.AssertContains(t, stdout, "already canonical")
}

func Test_Report_Writes_Markdown_File(t *testing.T) {
	t.Parallel()

	c := newRepo(t)
	stdout := c.MustRun("report", "-o", "progress.md")

	cli.AssertContains(t, stdout, "wrote "+c.Path("progress.md"))

	report := c.ReadFile("progress.md")
	cli.AssertContains(t, report, "# Transcription Progress")
	cli.AssertContains(t, report, "letters")
	cli.AssertContains(t, report, "diary")
	cli.AssertContains(t, report, "mermaid")
}

func Test_Report_Prints_To_Stdout_Without_Output_Flag(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("report")

	cli.AssertContains(t, stdout, "# Transcription Progress")
	cli.AssertContains(t, stdout, "The catalog is empty.")
}
