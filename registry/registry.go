package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store owns the JSON registry files (accounts, projects, UI settings).
// All mutations go through a single mutex and are persisted with a
// temp-file-then-rename write so a crash never leaves a half-written registry.
type Store struct {
	mu    sync.Mutex
	paths Paths
}

// Paths describes the on-disk layout rooted at the data directory.
type Paths struct {
	Root         string
	Registry     string
	AccountsRoot string
	Logs         string
	AccountsFile string
	ProjectsFile string
	SettingsFile string
}

// ErrValidation wraps registry validation failures so callers can map them
// to 4xx responses.
var ErrValidation = errors.New("registry validation failed")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewStore creates the registry layout under root and seeds empty files.
func NewStore(root string) (*Store, error) {
	s := &Store{
		paths: Paths{
			Root:         root,
			Registry:     filepath.Join(root, "registry"),
			AccountsRoot: filepath.Join(root, "accounts"),
			Logs:         filepath.Join(root, "logs"),
			AccountsFile: filepath.Join(root, "registry", "accounts.json"),
			ProjectsFile: filepath.Join(root, "registry", "projects.json"),
			SettingsFile: filepath.Join(root, "registry", "settings.json"),
		},
	}
	if err := s.ensureLayout(); err != nil {
		return nil, err
	}
	return s, nil
}

// Paths returns the resolved registry layout.
func (s *Store) Paths() Paths {
	return s.paths
}

func (s *Store) ensureLayout() error {
	for _, dir := range []string{s.paths.Root, s.paths.Registry, s.paths.AccountsRoot, s.paths.Logs} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create registry directory %s: %w", dir, err)
		}
		chmodBestEffort(dir, 0o700)
	}

	if _, err := os.Stat(s.paths.AccountsFile); os.IsNotExist(err) {
		if err := writeJSONFile(s.paths.AccountsFile, accountsPayload{Version: 1, Accounts: []Account{}}); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.paths.ProjectsFile); os.IsNotExist(err) {
		if err := writeJSONFile(s.paths.ProjectsFile, projectsPayload{Version: 1, Projects: []Project{}}); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.paths.SettingsFile); os.IsNotExist(err) {
		if err := writeJSONFile(s.paths.SettingsFile, defaultSettingsPayload()); err != nil {
			return err
		}
	}

	chmodBestEffort(s.paths.AccountsFile, 0o600)
	chmodBestEffort(s.paths.ProjectsFile, 0o600)
	chmodBestEffort(s.paths.SettingsFile, 0o600)
	return nil
}

// chmodBestEffort tightens permissions where the filesystem allows it.
func chmodBestEffort(path string, mode os.FileMode) {
	_ = os.Chmod(path, mode)
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONFile(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
