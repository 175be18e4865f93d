package registry

import "strings"

// UISettings are the persisted web UI preferences.
type UISettings struct {
	Language            string `json:"language"`
	Theme               string `json:"theme"`
	WindowCloseBehavior string `json:"window_close_behavior"`
}

// UISettingsUpdate carries a partial settings update; nil fields are untouched.
type UISettingsUpdate struct {
	Language            *string `json:"language"`
	Theme               *string `json:"theme"`
	WindowCloseBehavior *string `json:"window_close_behavior"`
}

type settingsPayload struct {
	Version   int        `json:"version"`
	UI        UISettings `json:"ui"`
	UpdatedAt string     `json:"updated_at"`
}

var (
	uiLanguageValues            = map[string]bool{"zh-CN": true, "en-US": true}
	uiThemeValues               = map[string]bool{"light": true, "dark": true}
	uiWindowCloseBehaviorValues = map[string]bool{"exit": true, "minimize_to_tray": true}
)

func defaultUISettings() UISettings {
	return UISettings{
		Language:            "zh-CN",
		Theme:               "light",
		WindowCloseBehavior: "exit",
	}
}

func defaultSettingsPayload() settingsPayload {
	return settingsPayload{
		Version:   1,
		UI:        defaultUISettings(),
		UpdatedAt: utcNow(),
	}
}

func (s *Store) readSettings() settingsPayload {
	var payload settingsPayload
	if err := readJSONFile(s.paths.SettingsFile, &payload); err != nil {
		return defaultSettingsPayload()
	}
	return payload
}

func (s *Store) writeSettings(payload settingsPayload) error {
	if err := writeJSONFile(s.paths.SettingsFile, payload); err != nil {
		return err
	}
	chmodBestEffort(s.paths.SettingsFile, 0o600)
	return nil
}

// normalizeUISettings replaces unknown values with defaults.
func normalizeUISettings(ui UISettings) UISettings {
	defaults := defaultUISettings()
	ui.Language = strings.TrimSpace(ui.Language)
	ui.Theme = strings.TrimSpace(ui.Theme)
	ui.WindowCloseBehavior = strings.TrimSpace(ui.WindowCloseBehavior)
	if !uiLanguageValues[ui.Language] {
		ui.Language = defaults.Language
	}
	if !uiThemeValues[ui.Theme] {
		ui.Theme = defaults.Theme
	}
	if !uiWindowCloseBehaviorValues[ui.WindowCloseBehavior] {
		ui.WindowCloseBehavior = defaults.WindowCloseBehavior
	}
	return ui
}

// GetUISettings returns the normalized settings, rewriting the file if
// normalization changed anything.
func (s *Store) GetUISettings() (UISettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.readSettings()
	normalized := normalizeUISettings(payload.UI)
	if normalized != payload.UI {
		payload.UI = normalized
		payload.UpdatedAt = utcNow()
		if err := s.writeSettings(payload); err != nil {
			return normalized, err
		}
	}
	return normalized, nil
}

// UpdateUISettings applies a partial update; unlike reads, invalid values
// here are rejected rather than silently replaced.
func (s *Store) UpdateUISettings(updates UISettingsUpdate) (UISettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.readSettings()
	next := normalizeUISettings(payload.UI)

	if updates.Language != nil {
		language := strings.TrimSpace(*updates.Language)
		if !uiLanguageValues[language] {
			return next, validationErrorf("invalid language value")
		}
		next.Language = language
	}
	if updates.Theme != nil {
		theme := strings.TrimSpace(*updates.Theme)
		if !uiThemeValues[theme] {
			return next, validationErrorf("invalid theme value")
		}
		next.Theme = theme
	}
	if updates.WindowCloseBehavior != nil {
		behavior := strings.TrimSpace(*updates.WindowCloseBehavior)
		if !uiWindowCloseBehaviorValues[behavior] {
			return next, validationErrorf("invalid window_close_behavior value")
		}
		next.WindowCloseBehavior = behavior
	}

	payload.UI = next
	payload.UpdatedAt = utcNow()
	if err := s.writeSettings(payload); err != nil {
		return next, err
	}
	return next, nil
}
