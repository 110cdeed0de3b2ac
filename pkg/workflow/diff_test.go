package workflow

import "testing"

func TestUnifiedDiffIdentical(t *testing.T) {
	if got := unifiedDiff("a\nb\nc", "a\nb\nc", "a.py", "b.py"); got != "" {
		t.Errorf("expected empty diff, got %q", got)
	}
}

func TestUnifiedDiffReplacedLine(t *testing.T) {
	got := unifiedDiff("a\nb\nc", "a\nx\nc", "a.py", "b.py")
	want := "--- a.py\n" +
		"+++ b.py\n" +
		"@@ -1,3 +1,3 @@\n" +
		" a\n" +
		"-b\n" +
		"+x\n" +
		" c"
	if got != want {
		t.Errorf("diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnifiedDiffAppendedLine(t *testing.T) {
	got := unifiedDiff("a\nb", "a\nb\nc", "a.py", "b.py")
	want := "--- a.py\n" +
		"+++ b.py\n" +
		"@@ -1,2 +1,3 @@\n" +
		" a\n" +
		" b\n" +
		"+c"
	if got != want {
		t.Errorf("diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnifiedDiffSplitsDistantHunks(t *testing.T) {
	original := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12"
	modified := "x\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\ny"
	got := unifiedDiff(original, modified, "a.py", "b.py")

	want := "--- a.py\n" +
		"+++ b.py\n" +
		"@@ -1,4 +1,4 @@\n" +
		"-1\n" +
		"+x\n" +
		" 2\n" +
		" 3\n" +
		" 4\n" +
		"@@ -9,4 +9,4 @@\n" +
		" 9\n" +
		" 10\n" +
		" 11\n" +
		"-12\n" +
		"+y"
	if got != want {
		t.Errorf("diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
