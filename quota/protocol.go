package quota

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// JSON-RPC 2.0 over the app-server's stdio, one message per line.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// RPCError is the protocol-level error object of a response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// matchesID compares a response id against the correlation id we sent.
// Ids are always strings on our side; anything else never matches.
func (r *rpcResponse) matchesID(want string) bool {
	id, ok := r.ID.(string)
	return ok && id == want
}

// rateLimitsResult is the typed payload of account/rateLimits/read. Both the
// camelCase wire form and the snake_case variant seen in older servers parse.
type rateLimitsResult struct {
	RateLimits    *rateLimitsSnapshot `json:"rateLimits"`
	RateLimitsAlt *rateLimitsSnapshot `json:"rate_limits"`
}

func (r *rateLimitsResult) snapshot() *rateLimitsSnapshot {
	if r.RateLimits != nil {
		return r.RateLimits
	}
	return r.RateLimitsAlt
}

type rateLimitsSnapshot struct {
	Primary   *rateLimitWindow `json:"primary"`
	Secondary *rateLimitWindow `json:"secondary"`
}

type rateLimitWindow struct {
	UsedPercent        *float64 `json:"usedPercent"`
	UsedPercentAlt     *float64 `json:"used_percent"`
	WindowDurationMins *float64 `json:"windowDurationMins"`
	WindowMinutesAlt   *float64 `json:"window_minutes"`
	ResetsAt           *float64 `json:"resetsAt"`
	ResetsAtAlt        *float64 `json:"resets_at"`
}

func (w *rateLimitWindow) usedPercent() *float64 {
	if w.UsedPercent != nil {
		return w.UsedPercent
	}
	return w.UsedPercentAlt
}

func (w *rateLimitWindow) windowMinutes() int {
	return positiveInt(w.WindowDurationMins, w.WindowMinutesAlt)
}

func (w *rateLimitWindow) resetsAt() int64 {
	return int64(positiveInt(w.ResetsAt, w.ResetsAtAlt))
}

func positiveInt(values ...*float64) int {
	for _, value := range values {
		if value == nil {
			continue
		}
		parsed := int(*value)
		if parsed > 0 {
			return parsed
		}
	}
	return 0
}

const rpcMethodNotFound = -32601

// weeklyThresholdMinutes: a lone window spanning at least three days is
// treated as the weekly bucket.
const weeklyThresholdMinutes = 3 * 24 * 60

// classifyRPCError maps a protocol error object onto an actionable category.
func classifyRPCError(rpcErr *RPCError) *ProbeError {
	message := cleanLine(rpcErr.Message)
	if message == "" {
		message = "app-server returned an unknown error"
	}
	lowered := strings.ToLower(message)

	switch {
	case rpcErr.Code == rpcMethodNotFound,
		strings.Contains(lowered, "method not found"),
		strings.Contains(lowered, "ratelimits/read") && strings.Contains(lowered, "not found"):
		return &ProbeError{Kind: KindUnsupported, Message: "this codex version does not support the rate-limit endpoint; upgrade codex and retry"}
	case strings.Contains(lowered, "failed to fetch codex rate limits"):
		return &ProbeError{Kind: KindNetwork, Message: "rate-limit request failed; check the network connection and retry"}
	case strings.Contains(lowered, "not logged in"), strings.Contains(lowered, "login required"):
		return &ProbeError{Kind: KindAuth, Message: "this account is not logged in or its login has expired; log in again and retry"}
	default:
		return &ProbeError{Kind: KindUnknown, Message: message}
	}
}

type windowCandidate struct {
	window  *Window
	minutes int
}

// buildWindow converts one wire window; windows without a percent are dropped.
func buildWindow(raw *rateLimitWindow) *windowCandidate {
	if raw == nil {
		return nil
	}
	rawPercent := raw.usedPercent()
	if rawPercent == nil {
		return nil
	}

	percent := int(math.Round(*rawPercent))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	remaining := 100 - percent

	window := &Window{
		UsedPercent:      &percent,
		RemainingPercent: &remaining,
		WindowMinutes:    raw.windowMinutes(),
		ResetAt:          formatResetTimestamp(raw.resetsAt()),
	}
	return &windowCandidate{window: window, minutes: raw.windowMinutes()}
}

// formatResetTimestamp converts epoch seconds to a local-time display string.
func formatResetTimestamp(epochSeconds int64) string {
	if epochSeconds <= 0 {
		return ""
	}
	return time.Unix(epochSeconds, 0).Local().Format("2006-01-02 15:04")
}

// mapRateLimits assigns the two wire windows into five_hour/weekly buckets:
// shorter duration wins five_hour when both durations are known, positional
// order otherwise; a lone window lands by the three-day threshold.
func mapRateLimits(snapshot *rateLimitsSnapshot) (fiveHour, weekly *Window) {
	if snapshot == nil {
		return nil, nil
	}

	var candidates []*windowCandidate
	if c := buildWindow(snapshot.Primary); c != nil {
		candidates = append(candidates, c)
	}
	if c := buildWindow(snapshot.Secondary); c != nil {
		candidates = append(candidates, c)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		only := candidates[0]
		if only.minutes >= weeklyThresholdMinutes {
			weekly = only.window
		} else {
			fiveHour = only.window
		}
	default:
		if candidates[0].minutes > 0 && candidates[1].minutes > 0 {
			ordered := append([]*windowCandidate(nil), candidates...)
			sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].minutes < ordered[j].minutes })
			fiveHour = ordered[0].window
			weekly = ordered[len(ordered)-1].window
		} else {
			fiveHour = candidates[0].window
			weekly = candidates[1].window
		}
	}

	labelWindow(fiveHour, "5h")
	labelWindow(weekly, "weekly")
	return fiveHour, weekly
}

func labelWindow(window *Window, label string) {
	if window == nil || window.UsedPercent == nil {
		return
	}
	details := []string{fmt.Sprintf("%s used %d%%", label, *window.UsedPercent)}
	if window.ResetAt != "" {
		details = append(details, "reset "+window.ResetAt)
	}
	if window.WindowMinutes > 0 {
		details = append(details, fmt.Sprintf("window %dm", window.WindowMinutes))
	}
	window.Line = strings.Join(details, " · ")
}

// snapshotRawText joins the window summary lines for display.
func snapshotRawText(windows ...*Window) string {
	var lines []string
	for _, window := range windows {
		if window == nil {
			continue
		}
		line := cleanLine(window.Line)
		if line == "" {
			continue
		}
		duplicate := false
		for _, seen := range lines {
			if seen == line {
				duplicate = true
				break
			}
		}
		if !duplicate {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

var (
	ansiEscapeRe = regexp.MustCompile(`\x1B\[[0-9;]*[A-Za-z]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanLine strips ANSI escapes, collapses whitespace and trims list
// punctuation from both ends.
func cleanLine(value string) string {
	cleaned := whitespaceRe.ReplaceAllString(ansiEscapeRe.ReplaceAllString(value, ""), " ")
	return strings.Trim(cleaned, " |,，;；")
}
