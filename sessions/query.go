package sessions

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ListOptions filter and bound a session listing.
type ListOptions struct {
	Limit    int    // default 30
	Query    string // case-insensitive substring over session id and title
	DateFrom string // inclusive, YYYY-MM-DD
	DateTo   string // inclusive, YYYY-MM-DD
}

const defaultListLimit = 30

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return defaultListLimit
	}
	return o.Limit
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ListSessions returns the merged sessions recorded for one project,
// newest first. Sessions spanning multiple transcript files collapse into a
// single row carrying the newest timestamp and the first non-empty title.
func (a *Archive) ListSessions(projectPath string, opts ListOptions) []Summary {
	queryNorm := strings.ToLower(strings.TrimSpace(opts.Query))
	fromDate, hasFrom := parseDate(opts.DateFrom)
	toDate, hasTo := parseDate(opts.DateTo)
	if hasFrom && hasTo && fromDate.After(toDate) {
		fromDate, toDate = toDate, fromDate
	}
	needFullScan := queryNorm != "" || hasFrom || hasTo
	limit := opts.limit()

	targetPath := canonicalPath(projectPath)
	byID := make(map[string]*Record)
	for _, item := range a.Scan() {
		meta := item.Meta
		if meta.SessionID == "" || meta.CWD == "" {
			continue
		}
		if canonicalPath(meta.CWD) != targetPath {
			continue
		}

		existing := byID[meta.SessionID]
		if existing == nil {
			byID[meta.SessionID] = meta
		} else {
			currentTs := parseTimestamp(meta.Timestamp)
			existingTs := parseTimestamp(existing.Timestamp)
			if !currentTs.Before(existingTs) {
				// Newer record wins, but an earlier title survives.
				if meta.Title == "" && existing.Title != "" {
					meta.Title = existing.Title
				}
				byID[meta.SessionID] = meta
			} else if existing.Title == "" && meta.Title != "" {
				existing.Title = meta.Title
			}
		}

		if !needFullScan && len(byID) >= limit {
			break
		}
	}

	records := make([]*Record, 0, len(byID))
	for _, record := range byID {
		records = append(records, record)
	}

	if queryNorm != "" {
		filtered := records[:0]
		for _, record := range records {
			if strings.Contains(strings.ToLower(record.SessionID), queryNorm) ||
				strings.Contains(strings.ToLower(record.Title), queryNorm) {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	if hasFrom || hasTo {
		filtered := records[:0]
		for _, record := range records {
			ts := parseTimestamp(record.Timestamp)
			if ts.IsZero() {
				continue
			}
			day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
			if hasFrom && day.Before(fromDate) {
				continue
			}
			if hasTo && day.After(toDate) {
				continue
			}
			filtered = append(filtered, record)
		}
		records = filtered
	}

	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := parseTimestamp(records[i].Timestamp), parseTimestamp(records[j].Timestamp)
		if ti.Equal(tj) {
			return records[i].SessionID < records[j].SessionID
		}
		return ti.After(tj)
	})

	if len(records) > limit {
		records = records[:limit]
	}

	summaries := make([]Summary, 0, len(records))
	for _, record := range records {
		title := record.Title
		if title == "" {
			title = record.SessionID
		}
		summaries = append(summaries, Summary{
			SessionID: record.SessionID,
			Title:     title,
			Timestamp: record.Timestamp,
		})
	}
	return summaries
}

// FindSessionItems returns every live transcript file belonging to the given
// session within the given project, newest first.
func (a *Archive) FindSessionItems(projectPath, sessionID string) ([]Item, error) {
	normalized := strings.TrimSpace(sessionID)
	if normalized == "" {
		return nil, ErrEmptySessionID
	}

	targetPath := canonicalPath(projectPath)
	var matched []Item
	for _, item := range a.Scan() {
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

// SessionPreview returns the preview messages of the most recent transcript
// of one session.
func (a *Archive) SessionPreview(projectPath, sessionID string, maxMessages int) (*Preview, error) {
	items, err := a.FindSessionItems(projectPath, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrSessionNotFound
	}
	if maxMessages <= 0 {
		maxMessages = maxPreviewMessages
	}

	meta := items[0].Meta
	messages := make([]PreviewMessage, 0, maxMessages)
	for _, message := range meta.PreviewMessages {
		role := strings.TrimSpace(message.Role)
		text := strings.TrimSpace(message.Text)
		if (role != "user" && role != "assistant") || text == "" {
			continue
		}
		messages = append(messages, PreviewMessage{Role: role, Text: text})
		if len(messages) >= maxMessages {
			break
		}
	}

	title := meta.Title
	if title == "" {
		title = strings.TrimSpace(sessionID)
	}
	return &Preview{
		SessionID:  strings.TrimSpace(sessionID),
		Title:      title,
		Timestamp:  meta.Timestamp,
		FilesCount: len(items),
		Messages:   messages,
	}, nil
}

// PlanDeletion lists the files a delete call for this session would touch.
func (a *Archive) PlanDeletion(projectPath, sessionID string) (*DeletionPlan, error) {
	items, err := a.FindSessionItems(projectPath, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrSessionNotFound
	}

	files := make([]string, 0, len(items))
	for _, item := range items {
		if rel, err := filepath.Rel(a.SessionsRoot(), item.Path); err == nil {
			files = append(files, filepath.ToSlash(rel))
		} else {
			files = append(files, item.Path)
		}
	}

	meta := items[0].Meta
	title := meta.Title
	if title == "" {
		title = strings.TrimSpace(sessionID)
	}
	return &DeletionPlan{
		SessionID:  strings.TrimSpace(sessionID),
		Title:      title,
		FilesCount: len(files),
		Files:      files,
	}, nil
}
