package dispatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	text := "Here you go [send_file: " + existing + "] and also " +
		"[send_file: /nonexistent/ghost.txt] plus a repeat [send_file: " + existing + "]"

	files := ExtractFiles(text)
	if len(files) != 1 || files[0] != existing {
		t.Errorf("ExtractFiles = %v, want just %s", files, existing)
	}

	if got := ExtractFiles("no tags here"); got != nil {
		t.Errorf("ExtractFiles without tags = %v, want nil", got)
	}
}

func TestStripFileTags(t *testing.T) {
	got := StripFileTags("before [send_file: /tmp/a.txt] after")
	if got != "before  after" {
		t.Errorf("StripFileTags = %q", got)
	}
}

func TestFinalizeTextTruncation(t *testing.T) {
	short := FinalizeText("  hello  ")
	if short != "hello" {
		t.Errorf("FinalizeText short = %q", short)
	}

	long := strings.Repeat("a", MaxResponseChars+500)
	got := FinalizeText(long)
	if len(got) > MaxResponseChars {
		t.Errorf("truncated length = %d, want <= %d", len(got), MaxResponseChars)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Error("truncated text should end with the marker")
	}
}

func TestFinalizeTextRuneBoundary(t *testing.T) {
	// Multibyte content around the cut point must not be split mid-rune.
	long := strings.Repeat("é", MaxResponseChars)
	got := FinalizeText(long)
	if len(got) > MaxResponseChars {
		t.Errorf("length = %d, want <= %d", len(got), MaxResponseChars)
	}
	trimmed := strings.TrimSuffix(got, truncationMarker)
	for _, r := range trimmed {
		if r != 'é' {
			t.Fatalf("found broken rune %q in truncated output", r)
		}
	}
}
