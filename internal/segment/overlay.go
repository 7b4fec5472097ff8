package segment

import "strings"

// overlayWrapWidth is the fixed line width the overlay title is wrapped to.
const overlayWrapWidth = 30

// filter-expression characters that corrupt drawtext parsing unless escaped.
var filterEscaper = strings.NewReplacer(
	`\`, `\\`,
	`:`, `\:`,
	`'`, `\'`,
	`[`, `\[`,
	`]`, `\]`,
	`,`, `\,`,
	`=`, `\=`,
)

// escapeFilterText escapes text for use inside an ffmpeg filter expression.
func escapeFilterText(s string) string {
	return filterEscaper.Replace(s)
}

// wrapOverlayTitle wraps long text into lines of at most overlayWrapWidth
// runes, then pads every line symmetrically with spaces to the width of the
// longest line so the block renders centered.
func wrapOverlayTitle(text string) string {
	lines := wrapWords(text, overlayWrapWidth)
	if len(lines) == 0 {
		return ""
	}

	width := 0
	for _, line := range lines {
		if n := len([]rune(line)); n > width {
			width = n
		}
	}
	for i, line := range lines {
		lines[i] = padCenter(line, width)
	}
	return strings.Join(lines, "\n")
}

func wrapWords(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len([]rune(line))+1+len([]rune(word)) <= width {
			line += " " + word
			continue
		}
		lines = append(lines, line)
		line = word
	}
	return append(lines, line)
}

func padCenter(s string, width int) string {
	gap := width - len([]rune(s))
	if gap <= 0 {
		return s
	}
	left := gap / 2
	right := gap - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}
