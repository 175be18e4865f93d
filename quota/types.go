package quota

import "fmt"

// Window is one rate-limit accounting period as shown to the UI.
type Window struct {
	Line             string `json:"line,omitempty"`
	Used             string `json:"used,omitempty"`
	Limit            string `json:"limit,omitempty"`
	UsedPercent      *int   `json:"used_percent,omitempty"`
	RemainingPercent *int   `json:"remaining_percent,omitempty"`
	ResetAt          string `json:"reset_at,omitempty"`
	WindowMinutes    int    `json:"window_minutes,omitempty"`
}

// Clone returns a deep copy.
func (w *Window) Clone() *Window {
	if w == nil {
		return nil
	}
	out := *w
	if w.UsedPercent != nil {
		v := *w.UsedPercent
		out.UsedPercent = &v
	}
	if w.RemainingPercent != nil {
		v := *w.RemainingPercent
		out.RemainingPercent = &v
	}
	return &out
}

// maxSignalLineRunes rejects status dumps masquerading as window lines.
const maxSignalLineRunes = 180

// HasSignal reports whether the window carries real quota data: a percent
// used, a used/limit pair, or (for alternate status shapes) remaining plus
// reset with a short descriptive line.
func (w *Window) HasSignal() bool {
	if w == nil {
		return false
	}
	if w.UsedPercent != nil {
		return true
	}
	if w.Used != "" && w.Limit != "" {
		return true
	}
	if len([]rune(w.Line)) > maxSignalLineRunes {
		return false
	}
	return w.RemainingPercent != nil && w.ResetAt != ""
}

// Snapshot is one quota probe result for an account.
type Snapshot struct {
	FiveHour  *Window `json:"five_hour"`
	Weekly    *Window `json:"weekly"`
	Source    string  `json:"source"`
	RawText   string  `json:"raw_text"`
	FetchedAt string  `json:"fetched_at"`
	Cached    bool    `json:"cached"`
}

// HasSignal reports whether either window carries real data.
func (s *Snapshot) HasSignal() bool {
	if s == nil {
		return false
	}
	return s.FiveHour.HasSignal() || s.Weekly.HasSignal()
}

// Clone returns a deep copy so cached snapshots are never aliased by callers.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.FiveHour = s.FiveHour.Clone()
	out.Weekly = s.Weekly.Clone()
	return &out
}

// ErrorKind classifies probe failures. Only KindNetwork triggers the local
// proxy retry.
type ErrorKind string

const (
	KindCommFailure ErrorKind = "comm_failure"
	KindNoResult    ErrorKind = "no_result"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindAuth        ErrorKind = "auth"
	KindUnsupported ErrorKind = "unsupported"
	KindNoSignal    ErrorKind = "no_signal"
	KindUnknown     ErrorKind = "unknown"
)

// ProbeError is the single error type surfaced by this package: a
// classification plus a human-readable message.
type ProbeError struct {
	Kind    ErrorKind
	Message string
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to read quota: %s", e.Message)
}
