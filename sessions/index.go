package sessions

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zenquiem/codex-accounts-switch/log"
)

// transcriptPattern matches the transcript naming convention.
const transcriptPattern = "rollout-*.jsonl"

// indexFileName is the persisted index inside each sessions root.
const indexFileName = ".session_index.v1.json"

// Index maintains the incrementally-updated metadata cache for one sessions
// root. The persisted index is advisory: a missing or corrupt index only
// costs re-parsing, the filesystem stays the source of truth.
type Index struct {
	mu           sync.Mutex
	sessionsRoot string

	// parse is swappable in tests to observe cache hits.
	parse func(string) *Record

	// watched/dirty let a directory watcher short-circuit clean scans.
	watched   bool
	dirty     atomic.Bool
	lastItems []Item
}

// NewIndex creates an index over the given sessions root. The root may not
// exist yet; scans then return an empty result.
func NewIndex(sessionsRoot string) *Index {
	ix := &Index{
		sessionsRoot: sessionsRoot,
		parse:        ParseTranscript,
	}
	ix.dirty.Store(true)
	return ix
}

// Root returns the sessions root this index covers.
func (ix *Index) Root() string {
	return ix.sessionsRoot
}

// MarkDirty forces the next Scan to hit the filesystem.
func (ix *Index) MarkDirty() {
	ix.dirty.Store(true)
}

func (ix *Index) setWatched(watched bool) {
	ix.mu.Lock()
	ix.watched = watched
	ix.mu.Unlock()
}

func (ix *Index) indexPath() string {
	return filepath.Join(ix.sessionsRoot, indexFileName)
}

// Scan enumerates every transcript file under the sessions root, reusing
// previously parsed metadata when the (mtime_ns, size) fingerprint is
// unchanged, and persists the refreshed index. Results are ordered most
// recently modified first. A missing root yields an empty result.
func (ix *Index) Scan() []Item {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.watched && !ix.dirty.Load() {
		return cloneItems(ix.lastItems)
	}
	// Events arriving mid-scan re-set the flag and force the next scan.
	ix.dirty.Store(false)

	if _, err := os.Stat(ix.sessionsRoot); err != nil {
		ix.lastItems = nil
		return nil
	}

	previous := loadIndexFile(ix.indexPath())

	type fileStat struct {
		path    string
		mtimeNs int64
		size    int64
	}
	var files []fileStat
	_ = filepath.WalkDir(ix.sessionsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(transcriptPattern, d.Name()); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileStat{path: path, mtimeNs: info.ModTime().UnixNano(), size: info.Size()})
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].mtimeNs > files[j].mtimeNs })

	next := make(map[string]indexEntry, len(files))
	items := make([]Item, 0, len(files))
	changed := false

	for _, f := range files {
		rel, err := filepath.Rel(ix.sessionsRoot, f.path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		var meta *Record
		if cached, ok := previous.Files[rel]; ok && cached.MtimeNs == f.mtimeNs && cached.Size == f.size {
			meta = cached.Meta
		} else {
			changed = true
			meta = ix.parse(f.path)
		}
		next[rel] = indexEntry{MtimeNs: f.mtimeNs, Size: f.size, Meta: meta}

		if meta != nil {
			m := meta.Clone()
			m.SourceFile = f.path
			items = append(items, Item{Path: f.path, MtimeNs: f.mtimeNs, Meta: m})
		}
	}

	if !changed && len(previous.Files) != len(next) {
		changed = true
	}
	if !changed {
		for rel := range previous.Files {
			if _, ok := next[rel]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		saveIndexFile(ix.indexPath(), indexFile{Version: 1, Files: next})
	}

	ix.lastItems = items
	return cloneItems(items)
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = Item{Path: item.Path, MtimeNs: item.MtimeNs, Meta: item.Meta.Clone()}
	}
	return out
}

// loadIndexFile treats a missing or malformed index as empty.
func loadIndexFile(path string) indexFile {
	empty := indexFile{Version: 1, Files: map[string]indexEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return empty
	}
	var payload indexFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return empty
	}
	if payload.Files == nil {
		return empty
	}
	payload.Version = 1
	return payload
}

// saveIndexFile persists via temp-file-then-rename; failures are non-fatal.
func saveIndexFile(path string, payload indexFile) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("session index write skipped")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("session index rename skipped")
		_ = os.Remove(tmp)
	}
}
