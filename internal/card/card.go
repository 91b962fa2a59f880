// Package card renders a Result as the achievement card: period label,
// one line per achievement, the DJ's comment and the optional trivia.
package card

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/miroyo/internal/achievement"
)

// TriviaHeading titles the trivia section.
const TriviaHeading = "DJトリビア"

// Markdown renders r as Markdown. Model-written text is escaped so it
// cannot add structure of its own.
func Markdown(r achievement.Result) string {
	var b strings.Builder

	label := r.PeriodLabel
	if label == "" {
		label = achievement.DefaultPeriodLabel
	}
	fmt.Fprintf(&b, "## %s\n\n", escapeInline(singleLine(label)))

	for _, a := range r.Achievements {
		b.WriteString("- ")
		b.WriteString(Line(a))
		b.WriteString("\n")
	}

	if r.DJComment != "" {
		b.WriteString("\n")
		for _, line := range splitLines(r.DJComment) {
			b.WriteString("> ")
			b.WriteString(escapeBlockLine(line))
			b.WriteString("\n")
		}
	}

	if r.DJTrivia != "" {
		fmt.Fprintf(&b, "\n### %s\n\n", TriviaHeading)
		for _, line := range splitLines(r.DJTrivia) {
			b.WriteString(escapeBlockLine(line))
			b.WriteString("  \n")
		}
	}

	return strings.TrimRight(b.String(), " \n") + "\n"
}

// Line renders one achievement as `content: value unit（frequency）`.
func Line(a achievement.Achievement) string {
	content := a.Content
	if content == "" {
		content = achievement.DefaultContent
	}
	value := strings.TrimSpace(FormatValue(a.Value) + " " + singleLine(a.Unit))

	s := escapeInline(singleLine(content)) + ": " + escapeInline(value)
	if a.Frequency != "" {
		s += "（" + escapeInline(singleLine(a.Frequency)) + "）"
	}
	return s
}

// FormatValue prints v with the fewest digits that round-trip.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// HTML renders r through Markdown into an HTML fragment. Raw HTML in the
// source is never passed through.
func HTML(r achievement.Result) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(r)), &buf); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return buf.String(), nil
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
	`>`, `\>`,
	`#`, `\#`,
	`|`, `\|`,
	`~`, `\~`,
	`&`, `\&`,
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}

var orderedMarker = regexp.MustCompile(`^(\d+)([.)])`)

// escapeBlockLine escapes s and any list or heading marker it starts with.
func escapeBlockLine(s string) string {
	s = escapeInline(s)
	if s == "" {
		return s
	}
	switch s[0] {
	case '-', '+', '=':
		return `\` + s
	}
	return orderedMarker.ReplaceAllString(s, `$1\$2`)
}

func singleLine(s string) string {
	return strings.Join(splitLines(s), " ")
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
