package registry

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Project binds a directory on disk to the account whose sessions it uses.
type Project struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Path           string  `json:"path"`
	AccountID      string  `json:"account_id"`
	PreferredShell string  `json:"preferred_shell"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
	LastOpenedAt   *string `json:"last_opened_at"`
}

type projectsPayload struct {
	Version  int       `json:"version"`
	Projects []Project `json:"projects"`
}

func (s *Store) readProjects() (projectsPayload, error) {
	var payload projectsPayload
	if err := readJSONFile(s.paths.ProjectsFile, &payload); err != nil {
		return projectsPayload{Version: 1, Projects: []Project{}}, err
	}
	if payload.Projects == nil {
		payload.Projects = []Project{}
	}
	return payload, nil
}

func (s *Store) writeProjects(payload projectsPayload) error {
	if err := writeJSONFile(s.paths.ProjectsFile, payload); err != nil {
		return err
	}
	chmodBestEffort(s.paths.ProjectsFile, 0o600)
	return nil
}

// ListProjects returns all registered projects.
func (s *Store) ListProjects() ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	return payload.Projects, nil
}

// FindProject returns the project with the given id, or nil.
func (s *Store) FindProject(projectID string) (*Project, error) {
	projects, err := s.ListProjects()
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == projectID {
			return &projects[i], nil
		}
	}
	return nil, nil
}

func validateProjectInput(name, path string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", validationErrorf("project name must not be empty")
	}
	resolved, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", "", validationErrorf("invalid project path")
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", "", validationErrorf("project path does not exist or is not a directory")
	}
	return name, resolved, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// AddProject registers a new project bound to an existing account.
func (s *Store) AddProject(name, path, accountID string) (*Project, error) {
	name, resolved, err := validateProjectInput(name, path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	if !accountExists(accounts.Accounts, accountID) {
		return nil, validationErrorf("selected account does not exist")
	}

	payload, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	for _, project := range payload.Projects {
		if strings.EqualFold(strings.TrimSpace(project.Name), name) {
			return nil, validationErrorf("project name %q already exists", name)
		}
	}

	record := Project{
		ID:             strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name:           name,
		Path:           resolved,
		AccountID:      accountID,
		PreferredShell: "zsh",
		CreatedAt:      utcNow(),
	}
	payload.Projects = append(payload.Projects, record)
	if err := s.writeProjects(payload); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateProject rewrites name/path/account of an existing project.
func (s *Store) UpdateProject(projectID, name, path, accountID string) (*Project, error) {
	name, resolved, err := validateProjectInput(name, path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	if !accountExists(accounts.Accounts, accountID) {
		return nil, validationErrorf("selected account does not exist")
	}

	payload, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	var target *Project
	for i := range payload.Projects {
		project := &payload.Projects[i]
		if project.ID == projectID {
			target = project
		} else if strings.EqualFold(strings.TrimSpace(project.Name), name) {
			return nil, validationErrorf("project name %q already exists", name)
		}
	}
	if target == nil {
		return nil, validationErrorf("project to update not found")
	}

	target.Name = name
	target.Path = resolved
	target.AccountID = accountID
	target.UpdatedAt = utcNow()
	if err := s.writeProjects(payload); err != nil {
		return nil, err
	}
	result := *target
	return &result, nil
}

// DeleteProject removes a project record.
func (s *Store) DeleteProject(projectID string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	var target *Project
	remaining := payload.Projects[:0]
	for i := range payload.Projects {
		if payload.Projects[i].ID == projectID {
			project := payload.Projects[i]
			target = &project
		} else {
			remaining = append(remaining, payload.Projects[i])
		}
	}
	if target == nil {
		return nil, validationErrorf("project to delete not found")
	}
	payload.Projects = remaining
	if err := s.writeProjects(payload); err != nil {
		return nil, err
	}
	return target, nil
}

// TouchProjectOpened updates the last_opened_at timestamp.
func (s *Store) TouchProjectOpened(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.readProjects()
	if err != nil {
		return err
	}
	for i := range payload.Projects {
		if payload.Projects[i].ID == projectID {
			now := utcNow()
			payload.Projects[i].LastOpenedAt = &now
			return s.writeProjects(payload)
		}
	}
	return nil
}

func accountExists(accounts []Account, accountID string) bool {
	for _, account := range accounts {
		if account.ID == accountID {
			return true
		}
	}
	return false
}
