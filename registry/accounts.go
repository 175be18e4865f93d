package registry

import (
	"strings"
)

// Account is one isolated codex account with its own CODEX_HOME directory.
type Account struct {
	ID               string  `json:"id"`
	Alias            string  `json:"alias"`
	CodexHome        string  `json:"codex_home"`
	OAuthFingerprint string  `json:"oauth_fingerprint,omitempty"`
	CreatedAt        string  `json:"created_at"`
	LastUsedAt       *string `json:"last_used_at"`
}

type accountsPayload struct {
	Version  int       `json:"version"`
	Accounts []Account `json:"accounts"`
}

func (s *Store) readAccounts() (accountsPayload, error) {
	var payload accountsPayload
	if err := readJSONFile(s.paths.AccountsFile, &payload); err != nil {
		return accountsPayload{Version: 1, Accounts: []Account{}}, err
	}
	if payload.Accounts == nil {
		payload.Accounts = []Account{}
	}
	return payload, nil
}

func (s *Store) writeAccounts(payload accountsPayload) error {
	if err := writeJSONFile(s.paths.AccountsFile, payload); err != nil {
		return err
	}
	chmodBestEffort(s.paths.AccountsFile, 0o600)
	return nil
}

// ListAccounts returns all registered accounts.
func (s *Store) ListAccounts() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	return payload.Accounts, nil
}

// FindAccount returns the account with the given id, or nil.
func (s *Store) FindAccount(accountID string) (*Account, error) {
	accounts, err := s.ListAccounts()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == accountID {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// FindAccountByAlias matches aliases case-insensitively.
func (s *Store) FindAccountByAlias(alias string) (*Account, error) {
	accounts, err := s.ListAccounts()
	if err != nil {
		return nil, err
	}
	norm := strings.ToLower(strings.TrimSpace(alias))
	for i := range accounts {
		if strings.ToLower(strings.TrimSpace(accounts[i].Alias)) == norm {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// FindAccountByOAuthFingerprint returns the account already bound to the
// given OAuth identity, or nil.
func (s *Store) FindAccountByOAuthFingerprint(fingerprint string) (*Account, error) {
	fp := strings.TrimSpace(fingerprint)
	if fp == "" {
		return nil, nil
	}
	accounts, err := s.ListAccounts()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].OAuthFingerprint == fp {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// AddAccount registers a new account. Aliases are unique case-insensitively,
// and an OAuth fingerprint may be bound to at most one account.
func (s *Store) AddAccount(alias, accountID, codexHome, oauthFingerprint string) (*Account, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, validationErrorf("account alias must not be empty")
	}
	fingerprint := strings.TrimSpace(oauthFingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	for _, account := range payload.Accounts {
		if strings.EqualFold(strings.TrimSpace(account.Alias), alias) {
			return nil, validationErrorf("account alias %q already exists", alias)
		}
		if fingerprint != "" && account.OAuthFingerprint == fingerprint {
			existing := account.Alias
			if existing == "" {
				existing = account.ID
			}
			return nil, validationErrorf("this OAuth identity is already registered as %q", existing)
		}
	}

	record := Account{
		ID:               accountID,
		Alias:            alias,
		CodexHome:        codexHome,
		OAuthFingerprint: fingerprint,
		CreatedAt:        utcNow(),
	}
	payload.Accounts = append(payload.Accounts, record)
	if err := s.writeAccounts(payload); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetAccountOAuthFingerprint binds an OAuth identity to an existing account.
func (s *Store) SetAccountOAuthFingerprint(accountID, fingerprint string) error {
	fp := strings.TrimSpace(fingerprint)
	if fp == "" {
		return validationErrorf("oauth fingerprint must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.readAccounts()
	if err != nil {
		return err
	}

	var target *Account
	for i := range payload.Accounts {
		account := &payload.Accounts[i]
		if account.OAuthFingerprint == fp && account.ID != accountID {
			existing := account.Alias
			if existing == "" {
				existing = account.ID
			}
			return validationErrorf("this OAuth identity is already registered as %q", existing)
		}
		if account.ID == accountID {
			target = account
		}
	}
	if target == nil {
		return validationErrorf("account not found")
	}
	if target.OAuthFingerprint == fp {
		return nil
	}
	target.OAuthFingerprint = fp
	return s.writeAccounts(payload)
}

// DeleteAccount removes an account that no project references.
func (s *Store) DeleteAccount(accountID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	var referenced []string
	for _, project := range projects.Projects {
		if project.AccountID == accountID {
			referenced = append(referenced, project.Name)
		}
	}
	if len(referenced) > 0 {
		return nil, validationErrorf("account is still referenced by projects: %s", strings.Join(referenced, ", "))
	}

	payload, err := s.readAccounts()
	if err != nil {
		return nil, err
	}
	var target *Account
	remaining := payload.Accounts[:0]
	for i := range payload.Accounts {
		if payload.Accounts[i].ID == accountID {
			account := payload.Accounts[i]
			target = &account
		} else {
			remaining = append(remaining, payload.Accounts[i])
		}
	}
	if target == nil {
		return nil, validationErrorf("account to delete not found")
	}
	payload.Accounts = remaining
	if err := s.writeAccounts(payload); err != nil {
		return nil, err
	}
	return target, nil
}

// TouchAccountUsed updates the last_used_at timestamp.
func (s *Store) TouchAccountUsed(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.readAccounts()
	if err != nil {
		return err
	}
	for i := range payload.Accounts {
		if payload.Accounts[i].ID == accountID {
			now := utcNow()
			payload.Accounts[i].LastUsedAt = &now
			return s.writeAccounts(payload)
		}
	}
	return nil
}
