// Package settings persists the switcher's user preferences.
package settings

import "fmt"

type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

type Settings struct {
	Theme Theme `json:"theme"`
	// ConfirmOverwrite asks before a name submission replaces an existing
	// session. Turning it off applies such submissions directly.
	ConfirmOverwrite bool `json:"confirm_overwrite"`
}

func Default() Settings {
	return Settings{
		Theme:            ThemeSystem,
		ConfirmOverwrite: true,
	}
}

func (t Theme) IsValid() bool {
	switch t {
	case ThemeSystem, ThemeLight, ThemeDark:
		return true
	default:
		return false
	}
}

func (s Settings) Validate() error {
	if !s.Theme.IsValid() {
		return fmt.Errorf("invalid theme %q", s.Theme)
	}
	return nil
}

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	Theme            *Theme `json:"theme,omitempty"`
	ConfirmOverwrite *bool  `json:"confirm_overwrite,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return p.Theme == nil && p.ConfirmOverwrite == nil
}

func (p Patch) ApplyTo(s Settings) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.ConfirmOverwrite != nil {
		s.ConfirmOverwrite = *p.ConfirmOverwrite
	}
	return s
}
