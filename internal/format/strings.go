package format

// TruncateWithEllipsis truncates a string to maxWidth runes, appending "..."
// if the string exceeds the limit. If maxWidth is less than 4, the string
// is hard-truncated without an ellipsis suffix.
func TruncateWithEllipsis(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxWidth {
		return s
	}

	if maxWidth < 4 {
		return string(runes[:maxWidth])
	}

	return string(runes[:maxWidth-3]) + "..."
}

// PadRight pads s with spaces to width runes. Longer strings are truncated
// with an ellipsis so columns stay aligned.
func PadRight(s string, width int) string {
	s = TruncateWithEllipsis(s, width)
	n := len([]rune(s))
	if n >= width {
		return s
	}
	buf := make([]rune, 0, width)
	buf = append(buf, []rune(s)...)
	for ; n < width; n++ {
		buf = append(buf, ' ')
	}
	return string(buf)
}
