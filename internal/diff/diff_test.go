package diff

import "testing"

func TestUnifiedEqualInputs(t *testing.T) {
	if got := Unified("method\n  execute\n", "method\n  execute\n", 3); got != "" {
		t.Errorf("expected empty diff, got %q", got)
	}
}

func TestUnifiedSingleChange(t *testing.T) {
	expected := "method\n  execute\n  evaluate\n"
	actual := "method\n  produce\n  evaluate\n"

	got := Unified(expected, actual, 1)
	want := "@@ -1,3 +1,3 @@\n" +
		" method\n" +
		"-  execute\n" +
		"+  produce\n" +
		"   evaluate\n"
	if got != want {
		t.Errorf("diff mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestUnifiedDistantChangesSplitIntoHunks(t *testing.T) {
	expected := "a\nb\nc\nd\ne\nf\ng\nh\n"
	actual := "a\nX\nc\nd\ne\nf\ng\nY\n"

	got := Unified(expected, actual, 1)
	want := "@@ -1,3 +1,3 @@\n" +
		" a\n" +
		"-b\n" +
		"+X\n" +
		" c\n" +
		"@@ -7,2 +7,2 @@\n" +
		" g\n" +
		"-h\n" +
		"+Y\n"
	if got != want {
		t.Errorf("diff mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestUnifiedPureAddition(t *testing.T) {
	expected := "method\n  execute\n"
	actual := "method\n  execute\n  evaluate\n"

	got := Unified(expected, actual, 1)
	want := "@@ -2,1 +2,2 @@\n" +
		"   execute\n" +
		"+  evaluate\n"
	if got != want {
		t.Errorf("diff mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestUnifiedPureRemoval(t *testing.T) {
	expected := "method\n  execute\n  evaluate\n"
	actual := "method\n  execute\n"

	got := Unified(expected, actual, 0)
	want := "@@ -3,1 +3,0 @@\n" +
		"-  evaluate\n"
	if got != want {
		t.Errorf("diff mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestUnifiedNegativeContextClamped(t *testing.T) {
	got := Unified("a\nb\n", "a\nc\n", -5)
	want := "@@ -2,1 +2,1 @@\n" +
		"-b\n" +
		"+c\n"
	if got != want {
		t.Errorf("diff mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}
