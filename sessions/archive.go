package sessions

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/zenquiem/codex-accounts-switch/log"
)

// Archive is the session archive of one account home: the live sessions tree,
// its incremental index, and the trash tree for soft-deleted transcripts.
type Archive struct {
	home    string
	index   *Index
	watcher *Watcher
}

func newArchive(home string, watch bool) *Archive {
	a := &Archive{
		home:  home,
		index: NewIndex(filepath.Join(home, "sessions")),
	}
	if watch {
		watcher, err := WatchIndex(a.index)
		if err != nil {
			log.Debug().Err(err).Str("home", home).Msg("sessions watcher unavailable, scans will not be memoized")
		} else {
			a.watcher = watcher
		}
	}
	return a
}

// Home returns the account home this archive belongs to.
func (a *Archive) Home() string {
	return a.home
}

// SessionsRoot returns the live sessions tree.
func (a *Archive) SessionsRoot() string {
	return a.index.Root()
}

// TrashRoot returns the tree holding soft-deleted transcripts.
func (a *Archive) TrashRoot() string {
	return filepath.Join(a.home, "trash", "sessions")
}

// Scan returns every live transcript with parsed metadata, newest first.
func (a *Archive) Scan() []Item {
	return a.index.Scan()
}

func (a *Archive) close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
}

// Service hands out one Archive per account home. Archives are created
// lazily and cached so concurrent calls against the same home share one
// index mutex.
type Service struct {
	mu       sync.Mutex
	archives map[string]*Archive
	watch    bool
}

// NewService creates the archive service. With watch enabled each archive
// starts a directory watcher so clean scans reuse the last result.
func NewService(watch bool) *Service {
	return &Service{
		archives: make(map[string]*Archive),
		watch:    watch,
	}
}

// ForHome returns the archive for an account home, creating it on first use.
func (s *Service) ForHome(home string) *Archive {
	key := canonicalPath(home)

	s.mu.Lock()
	defer s.mu.Unlock()
	if archive, ok := s.archives[key]; ok {
		return archive
	}
	archive := newArchive(home, s.watch)
	s.archives[key] = archive
	return archive
}

// Close stops all watchers.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, archive := range s.archives {
		archive.close()
	}
	s.archives = make(map[string]*Archive)
}

// canonicalPath resolves symlinks so two spellings of the same directory
// compare equal; unresolvable paths fall back to their absolute form.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// parseTimestamp accepts RFC3339 with or without sub-second precision;
// unparseable values sort as zero.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
