package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTranscript(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func metaLine(id, timestamp, cwd string) string {
	return fmt.Sprintf(`{"type":"session_meta","payload":{"id":%q,"timestamp":%q,"cwd":%q,"model_provider":"openai"}}`, id, timestamp, cwd)
}

func messageLine(role, text string) string {
	contentType := "input_text"
	if role == "assistant" {
		contentType = "output_text"
	}
	return fmt.Sprintf(`{"type":"response_item","payload":{"type":"message","role":%q,"content":[{"type":%q,"text":%q}]}}`, role, contentType, text)
}

func TestParseTranscriptBasics(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "rollout-1.jsonl",
		metaLine("sess-1", "2026-08-01T10:00:00Z", "/work/app"),
		messageLine("user", "Refactor the config loader"),
		messageLine("assistant", "Sure, starting with the env parsing."),
	)

	record := ParseTranscript(path)
	if record == nil {
		t.Fatal("expected a record")
	}
	if record.SessionID != "sess-1" {
		t.Errorf("session id = %q", record.SessionID)
	}
	if record.CWD != "/work/app" {
		t.Errorf("cwd = %q", record.CWD)
	}
	if record.ModelProvider != "openai" {
		t.Errorf("model provider = %q", record.ModelProvider)
	}
	if record.Title != "Refactor the config loader" {
		t.Errorf("title = %q", record.Title)
	}
	if len(record.PreviewMessages) != 2 {
		t.Fatalf("preview messages = %d", len(record.PreviewMessages))
	}
	if record.PreviewMessages[1].Role != "assistant" {
		t.Errorf("second preview role = %q", record.PreviewMessages[1].Role)
	}
}

func TestParseTranscriptNoMeta(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "rollout-2.jsonl",
		messageLine("user", "hello"),
	)
	if record := ParseTranscript(path); record != nil {
		t.Errorf("expected nil record, got %+v", record)
	}
}

func TestParseTranscriptUnreadable(t *testing.T) {
	if record := ParseTranscript(filepath.Join(t.TempDir(), "missing.jsonl")); record != nil {
		t.Errorf("expected nil record for missing file, got %+v", record)
	}
}

func TestParseTranscriptFirstMetaWins(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "rollout-3.jsonl",
		metaLine("first", "2026-08-01T10:00:00Z", "/work/a"),
		metaLine("second", "2026-08-02T10:00:00Z", "/work/b"),
	)
	record := ParseTranscript(path)
	if record == nil || record.SessionID != "first" {
		t.Fatalf("expected first session_meta to win, got %+v", record)
	}
}

func TestParseTranscriptSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "rollout-4.jsonl",
		"{not json",
		metaLine("sess-4", "2026-08-01T10:00:00Z", "/work/app"),
		`{"type":"response_item","payload":"not an object"}`,
		messageLine("user", "still works"),
	)
	record := ParseTranscript(path)
	if record == nil || record.Title != "still works" {
		t.Fatalf("expected malformed lines to be skipped, got %+v", record)
	}
}

func TestParseTranscriptIgnoresBoilerplateTitle(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "rollout-5.jsonl",
		metaLine("sess-5", "2026-08-01T10:00:00Z", "/work/app"),
		messageLine("user", "<environment_context> cwd=/work/app </environment_context>"),
		messageLine("user", "Add retry logic to the uploader"),
	)
	record := ParseTranscript(path)
	if record == nil {
		t.Fatal("expected a record")
	}
	if record.Title != "Add retry logic to the uploader" {
		t.Errorf("title = %q", record.Title)
	}
	// The boilerplate message also stays out of the preview.
	for _, message := range record.PreviewMessages {
		if strings.Contains(message.Text, "environment_context") {
			t.Errorf("boilerplate leaked into preview: %q", message.Text)
		}
	}
}

func TestParseTranscriptPreviewCap(t *testing.T) {
	dir := t.TempDir()
	lines := []string{metaLine("sess-6", "2026-08-01T10:00:00Z", "/work/app")}
	for i := 0; i < 12; i++ {
		lines = append(lines, messageLine("user", fmt.Sprintf("message %d", i)))
	}
	record := ParseTranscript(writeTranscript(t, dir, "rollout-6.jsonl", lines...))
	if record == nil {
		t.Fatal("expected a record")
	}
	if len(record.PreviewMessages) != maxPreviewMessages {
		t.Errorf("preview messages = %d, want %d", len(record.PreviewMessages), maxPreviewMessages)
	}
}

func TestBuildSessionTitle(t *testing.T) {
	tests := []struct {
		desc string
		in   string
		want string
	}{
		{"plain text", "Refactor the parser", "Refactor the parser"},
		{"cut at first period", "Fix the bug. Then test it.", "Fix the bug."},
		{"period inside version survives", "Bump the dep to v1.2 and rerun CI", "Bump the dep to v1.2 and rerun CI"},
		{"cut at CJK terminator", "修复登录问题。然后部署", "修复登录问题。"},
		{"cut at question mark", "Why does startup hang? Investigate the watcher", "Why does startup hang?"},
		{"trailing period kept", "Ship it.", "Ship it."},
		{"whitespace collapsed", "  line one\n\tline two  ", "line one line two"},
		{"empty", "   ", ""},
		{
			"long text truncated",
			strings.Repeat("a", 100),
			strings.Repeat("a", 72) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := buildSessionTitle(tt.in); got != tt.want {
				t.Errorf("buildSessionTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncatePreviewText(t *testing.T) {
	long := strings.Repeat("b", 200)
	got := truncatePreviewText(long)
	if want := strings.Repeat("b", maxPreviewRunes) + "..."; got != want {
		t.Errorf("long preview = %d runes, want %d plus ellipsis", len([]rune(got)), maxPreviewRunes)
	}
	if got := truncatePreviewText("short"); got != "short" {
		t.Errorf("short preview = %q", got)
	}
}

func TestShouldIgnoreTitleSource(t *testing.T) {
	tests := []struct {
		desc string
		in   string
		want bool
	}{
		{"agents banner", "# AGENTS.md instructions for the repo", true},
		{"environment context", "<environment_context>\ncwd=/x\n</environment_context>", true},
		{"permissions", "<permissions instructions> read-only", true},
		{"collaboration mode", "<collaboration_mode>pair</collaboration_mode>", true},
		{"leading blank lines before banner", "\n\n<environment_context>", true},
		{"regular message", "Fix the flaky test", false},
		{"only whitespace", "  \n ", true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := shouldIgnoreTitleSource(tt.in); got != tt.want {
				t.Errorf("shouldIgnoreTitleSource(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
