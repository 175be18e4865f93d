package sessions

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

const (
	// maxScanLines bounds the per-file scan; transcript metadata appears near
	// the top of the file, so there is no need to read gigabyte logs end to end.
	maxScanLines = 1500

	maxPreviewMessages = 8
	maxTitleRunes      = 72
	maxPreviewRunes    = 180

	// maxLineBytes sizes the scanner buffer; transcript lines can carry large
	// embedded payloads.
	maxLineBytes = 1024 * 1024
)

type transcriptLine struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sessionMetaPayload struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	CWD           string `json:"cwd"`
	ModelProvider string `json:"model_provider"`
}

type responseItemPayload struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentItem `json:"content"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// titleIgnorePrefixes are boilerplate banners injected at the start of a
// conversation; a user message opening with one of these never becomes the
// session title (it may still appear in the preview).
var titleIgnorePrefixes = []string{
	"# agents.md instructions for",
	"<environment_context>",
	"<permissions instructions>",
	"<collaboration_mode>",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// ParseTranscript extracts session metadata and a short preview from one
// newline-delimited JSON transcript file. It returns nil when the file is
// unreadable or carries no session_meta line; malformed lines are skipped.
func ParseTranscript(path string) *Record {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var (
		meta    *Record
		title   string
		preview []PreviewMessage
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	lines := 0
	for scanner.Scan() {
		if lines >= maxScanLines {
			break
		}
		lines++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item transcriptLine
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			continue
		}

		switch item.Type {
		case "session_meta":
			// First occurrence wins.
			if meta != nil {
				continue
			}
			var payload sessionMetaPayload
			if err := json.Unmarshal(item.Payload, &payload); err != nil {
				continue
			}
			meta = &Record{
				SessionID:     payload.ID,
				Timestamp:     payload.Timestamp,
				CWD:           payload.CWD,
				ModelProvider: payload.ModelProvider,
				SourceFile:    path,
			}

		case "response_item":
			var payload responseItemPayload
			if err := json.Unmarshal(item.Payload, &payload); err != nil {
				continue
			}
			if payload.Type != "message" {
				continue
			}
			if payload.Role != "user" && payload.Role != "assistant" {
				continue
			}

			rawText := extractMessageText(payload.Content)
			if rawText == "" {
				continue
			}

			ignoreForTitle := payload.Role == "user" && shouldIgnoreTitleSource(rawText)
			if payload.Role == "user" && title == "" && !ignoreForTitle {
				title = buildSessionTitle(rawText)
			}

			if !(payload.Role == "user" && ignoreForTitle) && len(preview) < maxPreviewMessages {
				if text := truncatePreviewText(rawText); text != "" {
					preview = append(preview, PreviewMessage{Role: payload.Role, Text: text})
				}
			}
		}

		if meta != nil && title != "" && len(preview) >= maxPreviewMessages {
			break
		}
	}
	if scanner.Err() != nil {
		return nil
	}

	if meta == nil {
		return nil
	}
	meta.Title = title
	meta.PreviewMessages = preview
	return meta
}

// extractMessageText joins the text parts of a message content array.
func extractMessageText(content []contentItem) string {
	var parts []string
	for _, item := range content {
		switch item.Type {
		case "input_text", "text", "output_text":
		default:
			continue
		}
		if text := strings.TrimSpace(item.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// shouldIgnoreTitleSource reports whether the message opens with a known
// boilerplate marker.
func shouldIgnoreTitleSource(rawText string) bool {
	for _, line := range strings.Split(rawText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lowered := strings.ToLower(trimmed)
		for _, prefix := range titleIgnorePrefixes {
			if strings.HasPrefix(lowered, prefix) {
				return true
			}
		}
		return false
	}
	return true
}

// buildSessionTitle collapses whitespace, cuts at the first sentence
// terminator and truncates to maxTitleRunes with a trailing ellipsis.
func buildSessionTitle(rawText string) string {
	collapsed := collapseWhitespace(rawText)
	if collapsed == "" {
		return ""
	}

	runes := []rune(collapsed)
	cut := -1
	for i, r := range runes {
		switch r {
		case '。', '！', '？', '!', '?':
			cut = i
		case '.':
			// A period only terminates a sentence at end of text or before a
			// space, so version strings like "v1.2" stay intact.
			if i == len(runes)-1 || runes[i+1] == ' ' {
				cut = i
			}
		}
		if cut != -1 {
			break
		}
	}

	title := collapsed
	if cut != -1 {
		title = strings.TrimSpace(string(runes[:cut+1]))
	}

	titleRunes := []rune(title)
	if len(titleRunes) > maxTitleRunes {
		title = strings.TrimRight(string(titleRunes[:maxTitleRunes]), " ") + "..."
	}
	return title
}

// truncatePreviewText collapses whitespace and truncates to maxPreviewRunes.
func truncatePreviewText(rawText string) string {
	collapsed := collapseWhitespace(rawText)
	runes := []rune(collapsed)
	if len(runes) <= maxPreviewRunes {
		return collapsed
	}
	return strings.TrimRight(string(runes[:maxPreviewRunes]), " ") + "..."
}

func collapseWhitespace(value string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
}
