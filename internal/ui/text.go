package ui

import "strings"

// TruncateSimple shortens s to at most maxLen runes, appending an ellipsis
// when anything was cut.
func TruncateSimple(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return "…"
	}
	return string(runes[:maxLen-1]) + "…"
}

// WrapText wraps s at word boundaries so no line exceeds width. Words longer
// than the width get a line of their own.
func WrapText(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}

	var out []string
	for _, line := range strings.Split(s, "\n") {
		words := strings.Fields(line)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		cur := words[0]
		for _, w := range words[1:] {
			if len(cur)+1+len(w) > width {
				out = append(out, cur)
				cur = w
				continue
			}
			cur += " " + w
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}
