package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func addTestAccount(t *testing.T, store *Store, alias string) *Account {
	t.Helper()
	home := filepath.Join(store.Paths().AccountsRoot, alias)
	account, err := store.AddAccount(alias, "id-"+alias, home, "")
	if err != nil {
		t.Fatalf("add account %s: %v", alias, err)
	}
	return account
}

func TestNewStoreCreatesLayout(t *testing.T) {
	store := newTestStore(t)
	paths := store.Paths()

	for _, dir := range []string{paths.Registry, paths.AccountsRoot, paths.Logs} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing layout dir %q: %v", dir, err)
		}
	}
	for _, file := range []string{paths.AccountsFile, paths.ProjectsFile, paths.SettingsFile} {
		if _, err := os.Stat(file); err != nil {
			t.Errorf("missing seeded file %q: %v", file, err)
		}
	}

	accounts, err := store.ListAccounts()
	if err != nil || len(accounts) != 0 {
		t.Errorf("fresh store accounts = %v, %v", accounts, err)
	}
}

func TestAddAccountValidation(t *testing.T) {
	store := newTestStore(t)
	addTestAccount(t, store, "work")

	if _, err := store.AddAccount("", "id-x", "/tmp/x", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty alias err = %v", err)
	}
	// Aliases are unique case-insensitively.
	if _, err := store.AddAccount("WORK", "id-y", "/tmp/y", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate alias err = %v", err)
	}
}

func TestAccountFingerprintDedupe(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.AddAccount("a", "id-a", "/tmp/a", "fp-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.AddAccount("b", "id-b", "/tmp/b", "fp-1"); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate fingerprint err = %v", err)
	}

	account, err := store.FindAccountByOAuthFingerprint("fp-1")
	if err != nil || account == nil || account.ID != "id-a" {
		t.Errorf("find by fingerprint = %+v, %v", account, err)
	}
}

func TestSetAccountOAuthFingerprint(t *testing.T) {
	store := newTestStore(t)
	account := addTestAccount(t, store, "work")

	if err := store.SetAccountOAuthFingerprint(account.ID, "fp-new"); err != nil {
		t.Fatalf("set fingerprint: %v", err)
	}
	found, err := store.FindAccount(account.ID)
	if err != nil || found == nil || found.OAuthFingerprint != "fp-new" {
		t.Errorf("after set: %+v, %v", found, err)
	}

	if err := store.SetAccountOAuthFingerprint(account.ID, "  "); !errors.Is(err, ErrValidation) {
		t.Errorf("blank fingerprint err = %v", err)
	}
}

func TestDeleteAccountRefusesWhenReferenced(t *testing.T) {
	store := newTestStore(t)
	account := addTestAccount(t, store, "work")
	projectDir := t.TempDir()
	if _, err := store.AddProject("demo", projectDir, account.ID); err != nil {
		t.Fatalf("add project: %v", err)
	}

	if _, err := store.DeleteAccount(account.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("referenced delete err = %v", err)
	}

	// After the project goes away the account can be deleted.
	projects, _ := store.ListProjects()
	if _, err := store.DeleteProject(projects[0].ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	deleted, err := store.DeleteAccount(account.ID)
	if err != nil || deleted == nil || deleted.ID != account.ID {
		t.Errorf("delete = %+v, %v", deleted, err)
	}
}

func TestTouchAccountUsed(t *testing.T) {
	store := newTestStore(t)
	account := addTestAccount(t, store, "work")
	if account.LastUsedAt != nil {
		t.Errorf("fresh account has last_used_at %v", *account.LastUsedAt)
	}

	if err := store.TouchAccountUsed(account.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	found, _ := store.FindAccount(account.ID)
	if found == nil || found.LastUsedAt == nil || *found.LastUsedAt == "" {
		t.Errorf("last_used_at not set: %+v", found)
	}
}

func TestAddProjectValidation(t *testing.T) {
	store := newTestStore(t)
	account := addTestAccount(t, store, "work")
	projectDir := t.TempDir()

	tests := []struct {
		desc      string
		name      string
		path      string
		accountID string
	}{
		{"empty name", "", projectDir, account.ID},
		{"missing path", "demo", filepath.Join(projectDir, "nope"), account.ID},
		{"unknown account", "demo", projectDir, "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := store.AddProject(tt.name, tt.path, tt.accountID); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	project, err := store.AddProject("demo", projectDir, account.ID)
	if err != nil {
		t.Fatalf("add project: %v", err)
	}
	if project.ID == "" || len(project.ID) != 12 {
		t.Errorf("project id = %q", project.ID)
	}
	if project.PreferredShell != "zsh" {
		t.Errorf("preferred shell = %q", project.PreferredShell)
	}

	if _, err := store.AddProject("DEMO", projectDir, account.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate name err = %v", err)
	}
}

func TestUpdateProject(t *testing.T) {
	store := newTestStore(t)
	account := addTestAccount(t, store, "work")
	other := addTestAccount(t, store, "personal")
	projectDir := t.TempDir()
	newDir := t.TempDir()

	project, err := store.AddProject("demo", projectDir, account.ID)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, err := store.UpdateProject(project.ID, "renamed", newDir, other.ID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "renamed" || updated.AccountID != other.ID {
		t.Errorf("updated = %+v", updated)
	}
	if updated.UpdatedAt == "" {
		t.Error("updated_at not set")
	}

	if _, err := store.UpdateProject("ghost", "x", newDir, account.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown project err = %v", err)
	}
}

func TestUISettingsDefaultsAndNormalization(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.GetUISettings()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := UISettings{Language: "zh-CN", Theme: "light", WindowCloseBehavior: "exit"}
	if settings != want {
		t.Errorf("defaults = %+v", settings)
	}

	// A corrupted value on disk normalizes back to the default on read.
	payload := store.readSettings()
	payload.UI.Theme = "neon"
	if err := store.writeSettings(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	settings, err = store.GetUISettings()
	if err != nil || settings.Theme != "light" {
		t.Errorf("normalized read = %+v, %v", settings, err)
	}
}

func TestUpdateUISettings(t *testing.T) {
	store := newTestStore(t)

	theme := "dark"
	updated, err := store.UpdateUISettings(UISettingsUpdate{Theme: &theme})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Theme != "dark" || updated.Language != "zh-CN" {
		t.Errorf("partial update = %+v", updated)
	}

	bad := "invalid"
	if _, err := store.UpdateUISettings(UISettingsUpdate{Language: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid language err = %v", err)
	}
	// The failed update left the previous values in place.
	settings, _ := store.GetUISettings()
	if settings.Theme != "dark" || settings.Language != "zh-CN" {
		t.Errorf("settings after failed update = %+v", settings)
	}
}

func TestRegistrySurvivesReload(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	account := addTestAccount(t, store, "work")

	reopened, err := NewStore(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	found, err := reopened.FindAccount(account.ID)
	if err != nil || found == nil || found.Alias != "work" {
		t.Errorf("reloaded account = %+v, %v", found, err)
	}
}
