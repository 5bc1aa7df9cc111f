package handlers

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeTextKeepsNewlinesAndTabs(t *testing.T) {
	got := sanitizeText("  line one\n\tline two\x00\x1b  ")
	if got != "line one\n\tline two" {
		t.Fatalf("sanitized = %q", got)
	}
}

func TestSanitizeTextTruncatesOnRuneBoundary(t *testing.T) {
	// The cap lands in the middle of the final three-byte rune.
	text := strings.Repeat("a", maxTextLength-1) + "世"
	got := sanitizeText(text)
	if len(got) > maxTextLength {
		t.Fatalf("len = %d, want <= %d", len(got), maxTextLength)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got[len(got)-4:])
	}
	if got != strings.Repeat("a", maxTextLength-1) {
		t.Fatal("partial rune must be dropped, not kept")
	}
}

func TestSanitizeNameTruncatesOnRuneBoundary(t *testing.T) {
	name := strings.Repeat("b", 99) + "é"
	got := sanitizeName(name)
	if len(got) > 100 || !utf8.ValidString(got) {
		t.Fatalf("name truncation invalid: len=%d %q", len(got), got)
	}
}
