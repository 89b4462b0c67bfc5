// Package jsoncolor renders JSON with terminal syntax highlighting.
package jsoncolor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the style of each JSON token class.
type Theme struct {
	Key         lipgloss.Style
	String      lipgloss.Style
	Number      lipgloss.Style
	Bool        lipgloss.Style
	Null        lipgloss.Style
	Punctuation lipgloss.Style
}

// DefaultTheme uses the terminal's ANSI palette.
func DefaultTheme() Theme {
	return Theme{
		Key:         lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		String:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Number:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Bool:        lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		Null:        lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Punctuation: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Colorize pretty-prints data with the default theme. Invalid JSON is
// returned unchanged.
func Colorize(data []byte) string {
	return DefaultTheme().Colorize(data)
}

// Colorize pretty-prints data with t. Invalid JSON is returned unchanged.
func (t Theme) Colorize(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	raw := buf.String()

	var out strings.Builder
	for i := 0; i < len(raw); {
		ch := raw[i]
		switch {
		case ch == '"':
			end := stringEnd(raw, i)
			tok := raw[i : end+1]
			if rest := strings.TrimLeft(raw[end+1:], " \t"); strings.HasPrefix(rest, ":") {
				out.WriteString(t.Key.Render(tok))
			} else {
				out.WriteString(t.String.Render(tok))
			}
			i = end + 1

		case ch == '-' || (ch >= '0' && ch <= '9'):
			end := i + 1
			for end < len(raw) && strings.IndexByte("0123456789.eE+-", raw[end]) >= 0 {
				end++
			}
			out.WriteString(t.Number.Render(raw[i:end]))
			i = end

		case strings.HasPrefix(raw[i:], "true"):
			out.WriteString(t.Bool.Render("true"))
			i += 4

		case strings.HasPrefix(raw[i:], "false"):
			out.WriteString(t.Bool.Render("false"))
			i += 5

		case strings.HasPrefix(raw[i:], "null"):
			out.WriteString(t.Null.Render("null"))
			i += 4

		case strings.IndexByte("{}[]:,", ch) >= 0:
			out.WriteString(t.Punctuation.Render(string(ch)))
			i++

		default:
			out.WriteByte(ch)
			i++
		}
	}
	return out.String()
}

// stringEnd returns the index of the quote closing the string that starts
// at pos.
func stringEnd(s string, pos int) int {
	for i := pos + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return len(s) - 1
}
