package format

import (
	"strings"
	"testing"

	"github.com/logpost-sh/agent/internal/model"
)

func TestTruncateTail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{
			name:     "shorter than limit",
			input:    "hello",
			limit:    10,
			expected: "hello",
		},
		{
			name:     "exactly at limit",
			input:    "hello",
			limit:    5,
			expected: "hello",
		},
		{
			name:     "keeps the tail",
			input:    "0123456789",
			limit:    4,
			expected: "6789",
		},
		{
			name:     "empty input",
			input:    "",
			limit:    4,
			expected: "",
		},
		{
			name:     "multibyte runes counted as characters",
			input:    "aébécé",
			limit:    3,
			expected: "écé",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateTail(tt.input, tt.limit)
			if got != tt.expected {
				t.Errorf("TruncateTail(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.expected)
			}
		})
	}
}

func TestTruncateTailLength(t *testing.T) {
	// len(result) == min(L, N) in runes, for lengths straddling the limit
	const limit = 100
	for _, l := range []int{0, 1, 99, 100, 101, 500} {
		input := strings.Repeat("x", l)
		got := TruncateTail(input, limit)
		want := l
		if want > limit {
			want = limit
		}
		if len([]rune(got)) != want {
			t.Errorf("length %d: got %d characters, want %d", l, len([]rune(got)), want)
		}
	}
}

func TestRenderTailConcatenatesInOrder(t *testing.T) {
	chunks := []model.LogChunk{
		{Stream: model.StreamOut, Data: []byte("first\n")},
		{Stream: model.StreamErr, Data: []byte("second\n")},
		{Stream: model.StreamOut, Data: []byte("third\n")},
	}

	got := RenderTail(chunks, EmbedTailLimit)
	if got != "first\nsecond\nthird\n" {
		t.Errorf("unexpected render: %q", got)
	}
}

func TestRenderTailStripsANSI(t *testing.T) {
	chunks := []model.LogChunk{
		{Stream: model.StreamOut, Data: []byte("\x1b[31mred\x1b[0m plain\n")},
	}

	got := RenderTail(chunks, EmbedTailLimit)
	if got != "red plain\n" {
		t.Errorf("ANSI sequences not stripped: %q", got)
	}
}

func TestRenderTailDropsControlCharacters(t *testing.T) {
	chunks := []model.LogChunk{
		{Stream: model.StreamOut, Data: []byte("a\x00b\x07c\td\ne")},
	}

	got := RenderTail(chunks, EmbedTailLimit)
	if got != "abc\td\ne" {
		t.Errorf("control characters not dropped: %q", got)
	}
}

func TestRenderTailInvalidUTF8(t *testing.T) {
	chunks := []model.LogChunk{
		{Stream: model.StreamOut, Data: []byte("good\n")},
		{Stream: model.StreamErr, Data: []byte{0xff, 0xfe, 0xfd}},
		{Stream: model.StreamOut, Data: []byte("after\n")},
	}

	got := RenderTail(chunks, EmbedTailLimit)
	if !strings.Contains(got, "good\n") || !strings.Contains(got, "after\n") {
		t.Errorf("valid chunks lost: %q", got)
	}
	if !strings.Contains(got, "invalid utf-8") {
		t.Errorf("missing placeholder for malformed chunk: %q", got)
	}
}

func TestRenderTailTruncatesToTail(t *testing.T) {
	chunks := []model.LogChunk{
		{Stream: model.StreamOut, Data: []byte(strings.Repeat("a", 50) + strings.Repeat("b", 50))},
	}

	got := RenderTail(chunks, 50)
	if got != strings.Repeat("b", 50) {
		t.Errorf("expected the most recent 50 characters, got %q", got)
	}
}

func TestBuildEmbed(t *testing.T) {
	w := model.Workload{
		ID:      "abc123",
		Name:    "web",
		Image:   "nginx:latest",
		Command: "nginx -g 'daemon off;'",
		Status:  "Up 3 hours",
		LogTail: []model.LogChunk{
			{Stream: model.StreamOut, Data: []byte("listening on :80\n")},
		},
	}

	embed := BuildEmbed(w, "logpost-agent", "v1.2.3")

	if embed.Title != "Up 3 hours" {
		t.Errorf("title = %q, want status line", embed.Title)
	}
	if embed.Author == nil || embed.Author.Name != "web (abc123)" {
		t.Errorf("author = %+v, want 'web (abc123)'", embed.Author)
	}
	if embed.Footer == nil || embed.Footer.Text != "logpost-agent (v1.2.3)" {
		t.Errorf("footer = %+v", embed.Footer)
	}
	if embed.Color != 0x3772FF {
		t.Errorf("color = %#x", embed.Color)
	}
	if !strings.Contains(embed.Description, "Image `nginx:latest`") {
		t.Errorf("description missing image: %q", embed.Description)
	}
	if !strings.Contains(embed.Description, "listening on :80") {
		t.Errorf("description missing log tail: %q", embed.Description)
	}
	if embed.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestBuildPlainTextBounded(t *testing.T) {
	w := model.Workload{
		ID:     "abc123",
		Name:   strings.Repeat("n", 3000),
		Image:  "busybox",
		Status: "Up 1 second",
	}

	got := BuildPlainText(w)
	if len([]rune(got)) > PlainTextLimit {
		t.Errorf("plain text exceeds limit: %d characters", len([]rune(got)))
	}
}
