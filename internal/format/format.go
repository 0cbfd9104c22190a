// Package format turns a workload's raw log chunks and status fields into
// bounded-length display payloads. It is pure: no I/O, no shared state.
package format

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"

	"github.com/logpost-sh/agent/internal/model"
	"github.com/logpost-sh/agent/internal/sink"
)

const (
	// EmbedTailLimit bounds the log tail inside a rich-embed body. Discord
	// caps embed descriptions at 4096 characters; the surrounding image and
	// command lines use the rest.
	EmbedTailLimit = 3900

	// PlainTextLimit bounds a plain message body, which Discord caps at
	// 2000 characters.
	PlainTextLimit = 1900

	embedColor = 0x3772FF

	utf8Placeholder = "-- invalid utf-8 in log output --\n"
)

// RenderTail concatenates the chunks in original order, sanitizes the result,
// and keeps only the final limit characters. Malformed byte sequences never
// fail the whole render: the offending chunk is replaced with a placeholder.
func RenderTail(chunks []model.LogChunk, limit int) string {
	var b strings.Builder
	for _, c := range chunks {
		if !utf8.Valid(c.Data) {
			b.WriteString(utf8Placeholder)
			continue
		}
		b.WriteString(sanitize(string(c.Data)))
	}
	return TruncateTail(b.String(), limit)
}

// TruncateTail keeps the final limit characters of s, discarding the earliest
// output first.
func TruncateTail(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}

// BuildEmbed renders a workload into the rich-embed shape used for message
// updates: author "name (id)", title carrying the status line, and a
// description with the image, command, and fenced log tail.
func BuildEmbed(w model.Workload, agentName, agentVersion string) sink.Embed {
	tail := RenderTail(w.LogTail, EmbedTailLimit)
	return sink.Embed{
		Title:       w.Status,
		Description: fmt.Sprintf("Image `%s`\nRunning `%s`:\n```%s```", w.Image, w.Command, tail),
		Color:       embedColor,
		Timestamp:   time.Now().UTC(),
		Footer:      &sink.EmbedFooter{Text: fmt.Sprintf("%s (%s)", agentName, agentVersion)},
		Author:      &sink.EmbedAuthor{Name: fmt.Sprintf("%s (%s)", w.Name, w.ID)},
	}
}

// BuildPlainText renders a workload into a short plain-text body, used for the
// initial message before the first embed update lands.
func BuildPlainText(w model.Workload) string {
	text := fmt.Sprintf("**%s** — %s\nImage `%s`", w.Name, w.Status, w.Image)
	return TruncateTail(text, PlainTextLimit)
}

// sanitize strips ANSI escape sequences and any remaining control or
// non-printable characters except newlines and tabs.
func sanitize(s string) string {
	stripped := ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, stripped)
}
