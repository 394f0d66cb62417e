package ui

import "testing"

func TestTruncateSimple(t *testing.T) {
	cases := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"truncate me", 8, "truncat…"},
		{"ab", 1, "…"},
		{"anything", 0, ""},
		{"héllo wörld", 7, "héllo …"},
	}
	for _, tc := range cases {
		if got := TruncateSimple(tc.in, tc.maxLen); got != tc.want {
			t.Errorf("TruncateSimple(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "one two", 20, "one two"},
		{"wraps at word boundary", "one two three four", 9, "one two\nthree\nfour"},
		{"long word gets own line", "a verylongword b", 6, "a\nverylongword\nb"},
		{"preserves blank lines", "a\n\nb", 10, "a\n\nb"},
		{"zero width unchanged", "anything at all", 0, "anything at all"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WrapText(tc.in, tc.width); got != tc.want {
				t.Errorf("WrapText(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
			}
		})
	}
}
