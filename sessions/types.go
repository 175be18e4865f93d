package sessions

import "errors"

// PreviewMessage is one user or assistant message kept for session previews.
type PreviewMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Record holds the metadata extracted from one transcript file.
type Record struct {
	SessionID       string           `json:"session_id"`
	Timestamp       string           `json:"timestamp"`
	CWD             string           `json:"cwd"`
	ModelProvider   string           `json:"model_provider,omitempty"`
	Title           string           `json:"title,omitempty"`
	PreviewMessages []PreviewMessage `json:"preview_messages,omitempty"`
	SourceFile      string           `json:"file,omitempty"`
}

// Clone returns a deep copy so cached records are never aliased by callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.PreviewMessages != nil {
		out.PreviewMessages = append([]PreviewMessage(nil), r.PreviewMessages...)
	}
	return &out
}

// indexEntry is one persisted cache row, keyed by path relative to the
// sessions root. The (mtime_ns, size) pair is the cache-validity fingerprint.
type indexEntry struct {
	MtimeNs int64   `json:"mtime_ns"`
	Size    int64   `json:"size"`
	Meta    *Record `json:"meta"`
}

// indexFile is the persisted index document.
type indexFile struct {
	Version int                   `json:"version"`
	Files   map[string]indexEntry `json:"files"`
}

// Item is one live transcript file with its parsed metadata.
type Item struct {
	Path    string
	MtimeNs int64
	Meta    *Record
}

// TrashItem is one trashed transcript file. RestoreRel is the path the file
// should be restored to, relative to the live sessions root.
type TrashItem struct {
	Path       string
	MtimeNs    int64
	Meta       *Record
	TrashBatch string
	RestoreRel string
	DeletedAt  string
}

// Summary is one merged session row for listings.
type Summary struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp,omitempty"`
}

// TrashedSummary is one merged trashed-session row.
type TrashedSummary struct {
	SessionID  string `json:"session_id"`
	Title      string `json:"title"`
	Timestamp  string `json:"timestamp,omitempty"`
	DeletedAt  string `json:"deleted_at,omitempty"`
	FilesCount int    `json:"files_count"`
}

// Preview is the detail payload for one session.
type Preview struct {
	SessionID  string           `json:"session_id"`
	Title      string           `json:"title"`
	Timestamp  string           `json:"timestamp,omitempty"`
	FilesCount int              `json:"files_count"`
	Messages   []PreviewMessage `json:"messages"`
}

// DeletionPlan lists the files a delete call would touch.
type DeletionPlan struct {
	SessionID  string   `json:"session_id"`
	Title      string   `json:"title"`
	FilesCount int      `json:"files_count"`
	Files      []string `json:"files"`
}

// DeleteResult reports a completed delete call.
type DeleteResult struct {
	RemovedFiles int    `json:"removed_files"`
	Mode         string `json:"mode"`
	TrashDir     string `json:"trash_dir,omitempty"`
}

// RestoreResult reports a completed restore call.
type RestoreResult struct {
	SessionID     string `json:"session_id"`
	RestoredFiles int    `json:"restored_files"`
}

var (
	// ErrSessionNotFound means no live transcript matched the session id and
	// project path.
	ErrSessionNotFound = errors.New("no matching session found")

	// ErrTrashedSessionNotFound means no trashed transcript matched.
	ErrTrashedSessionNotFound = errors.New("no matching session found in trash")

	// ErrEmptySessionID rejects blank session ids before any filesystem work.
	ErrEmptySessionID = errors.New("session id must not be empty")
)
