package sessions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zenquiem/codex-accounts-switch/log"
)

// fallbackRestoreName is used when a trash entry's recorded relative path
// sanitizes down to nothing.
const fallbackRestoreName = "unknown-rollout.jsonl"

// trashBatchStamp names a batch folder with a UTC timestamp at microsecond
// resolution, e.g. 20260829T153012483920Z.
func trashBatchStamp(now time.Time) string {
	utc := now.UTC()
	return fmt.Sprintf("%s%06dZ", utc.Format("20060102T150405"), utc.Nanosecond()/1000)
}

// scanTrash enumerates trashed transcript files, newest first. Trash entries
// are parsed fresh on every call; the trash tree is small and excluded from
// the persisted index.
func (a *Archive) scanTrash() []TrashItem {
	trashRoot := a.TrashRoot()
	if _, err := os.Stat(trashRoot); err != nil {
		return nil
	}

	var items []TrashItem
	_ = filepath.WalkDir(trashRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(transcriptPattern, d.Name()); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		meta := ParseTranscript(path)
		if meta == nil {
			return nil
		}

		rel, err := filepath.Rel(trashRoot, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			// A file directly under the trash root carries no batch folder,
			// so its restore target is unknown.
			return nil
		}

		meta.SourceFile = path
		items = append(items, TrashItem{
			Path:       path,
			MtimeNs:    info.ModTime().UnixNano(),
			Meta:       meta,
			TrashBatch: parts[0],
			RestoreRel: strings.Join(parts[1:], "/"),
			DeletedAt:  info.ModTime().UTC().Format(time.RFC3339),
		})
		return nil
	})

	sort.Slice(items, func(i, j int) bool { return items[i].MtimeNs > items[j].MtimeNs })
	return items
}

// findTrashedItems returns trashed files matching session id and project.
func (a *Archive) findTrashedItems(projectPath, sessionID string) ([]TrashItem, error) {
	normalized := strings.TrimSpace(sessionID)
	if normalized == "" {
		return nil, ErrEmptySessionID
	}

	targetPath := canonicalPath(projectPath)
	var matched []TrashItem
	for _, item := range a.scanTrash() {
		if item.Meta.SessionID != normalized {
			continue
		}
		if item.Meta.CWD == "" || canonicalPath(item.Meta.CWD) != targetPath {
			continue
		}
		matched = append(matched, item)
	}
	return matched, nil
}

// ListTrashedSessions returns merged trashed-session rows for one project,
// most recently deleted first.
func (a *Archive) ListTrashedSessions(projectPath string, limit int, query string) []TrashedSummary {
	queryNorm := strings.ToLower(strings.TrimSpace(query))
	if limit <= 0 {
		limit = defaultListLimit
	}
	targetPath := canonicalPath(projectPath)

	byID := make(map[string]*TrashedSummary)
	var order []string
	for _, item := range a.scanTrash() {
		meta := item.Meta
		if meta.SessionID == "" || meta.CWD == "" {
			continue
		}
		if canonicalPath(meta.CWD) != targetPath {
			continue
		}

		existing := byID[meta.SessionID]
		if existing == nil {
			title := meta.Title
			if title == "" {
				title = meta.SessionID
			}
			byID[meta.SessionID] = &TrashedSummary{
				SessionID:  meta.SessionID,
				Title:      title,
				Timestamp:  meta.Timestamp,
				DeletedAt:  item.DeletedAt,
				FilesCount: 1,
			}
			order = append(order, meta.SessionID)
			continue
		}

		existing.FilesCount++
		if parseTimestamp(item.DeletedAt).After(parseTimestamp(existing.DeletedAt)) {
			existing.DeletedAt = item.DeletedAt
		}
		if existing.Title == "" && meta.Title != "" {
			existing.Title = meta.Title
		}
	}

	summaries := make([]TrashedSummary, 0, len(order))
	for _, id := range order {
		summary := *byID[id]
		if queryNorm != "" &&
			!strings.Contains(strings.ToLower(summary.SessionID), queryNorm) &&
			!strings.Contains(strings.ToLower(summary.Title), queryNorm) {
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return parseTimestamp(summaries[i].DeletedAt).After(parseTimestamp(summaries[j].DeletedAt))
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// Delete removes every transcript file of a session within a project. With
// soft=true the files move into a new timestamped trash batch preserving
// their path relative to the sessions root; otherwise they are unlinked.
// Files already gone are skipped; any other filesystem error aborts the loop
// and is surfaced, leaving earlier moves in place.
func (a *Archive) Delete(projectPath, sessionID string, soft bool) (*DeleteResult, error) {
	items, err := a.FindSessionItems(projectPath, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrSessionNotFound
	}

	sessionsRoot := a.SessionsRoot()
	var trashDir string
	removed := 0
	for _, item := range items {
		if soft {
			if trashDir == "" {
				trashDir = filepath.Join(a.TrashRoot(), trashBatchStamp(time.Now()))
			}
			rel, relErr := filepath.Rel(sessionsRoot, item.Path)
			if relErr != nil || strings.HasPrefix(rel, "..") {
				rel = filepath.Base(item.Path)
			}
			target := filepath.Join(trashDir, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
				return nil, fmt.Errorf("move to trash failed: %s: %w", item.Path, err)
			}
			if err := os.Rename(item.Path, target); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("move to trash failed: %s: %w", item.Path, err)
			}
		} else {
			if err := os.Remove(item.Path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("permanent delete failed: %s: %w", item.Path, err)
			}
		}
		removed++
	}

	a.index.MarkDirty()
	a.Scan()

	mode := "hard"
	if soft {
		mode = "soft"
	}
	log.Info().
		Str("sessionId", strings.TrimSpace(sessionID)).
		Str("mode", mode).
		Int("removedFiles", removed).
		Msg("session deleted")
	return &DeleteResult{RemovedFiles: removed, Mode: mode, TrashDir: trashDir}, nil
}

// Restore moves every trashed transcript of a session back under the
// sessions root. Existing targets are never overwritten; a .restored-N
// suffix is appended instead.
func (a *Archive) Restore(projectPath, sessionID string) (*RestoreResult, error) {
	items, err := a.findTrashedItems(projectPath, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrTrashedSessionNotFound
	}

	sessionsRoot := a.SessionsRoot()
	restored := 0
	for _, item := range items {
		rel := sanitizeRestoreRel(item.RestoreRel)
		target := uniqueRestoreTarget(filepath.Join(sessionsRoot, rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return nil, fmt.Errorf("restore failed: %s: %w", item.Path, err)
		}
		if err := os.Rename(item.Path, target); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("restore failed: %s: %w", item.Path, err)
		}
		restored++
	}

	a.index.MarkDirty()
	a.Scan()

	log.Info().
		Str("sessionId", strings.TrimSpace(sessionID)).
		Int("restoredFiles", restored).
		Msg("session restored")
	return &RestoreResult{SessionID: strings.TrimSpace(sessionID), RestoredFiles: restored}, nil
}

// sanitizeRestoreRel strips traversal segments so the restore target can
// never escape the sessions root.
func sanitizeRestoreRel(raw string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/")
	cleaned = strings.TrimLeft(cleaned, "/")

	var safe []string
	for _, part := range strings.Split(cleaned, "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		safe = append(safe, part)
	}
	if len(safe) == 0 {
		return fallbackRestoreName
	}
	return filepath.Join(safe...)
}

// uniqueRestoreTarget returns path itself when free, else the first free
// path with a .restored-N suffix before the extension.
func uniqueRestoreTarget(path string) string {
	if _, err := os.Lstat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.restored-%d%s", stem, n, ext)
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
}
