package settings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// OnChangeListener is notified after settings are persisted. It is called
// outside the store's mutex.
type OnChangeListener interface {
	OnSettingsChange(s Settings)
}

type Store struct {
	path   string
	dataMu sync.RWMutex
	data   Settings

	listenerMu sync.RWMutex
	listeners  []OnChangeListener
}

// NewStore loads existing settings from disk or uses defaults.
func NewStore(dataDir string) (*Store, error) {
	s := &Store{
		path: filepath.Join(dataDir, "settings.json"),
		data: Default(),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) Get() Settings {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.data
}

func (s *Store) AddOnChangeListener(l OnChangeListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) Update(settings Settings) error {
	_, err := s.update(func(Settings) Settings { return settings })
	return err
}

// Apply merges p into the current settings and persists the result.
func (s *Store) Apply(p Patch) (Settings, error) {
	return s.update(p.ApplyTo)
}

func (s *Store) update(fn func(current Settings) Settings) (Settings, error) {
	s.dataMu.Lock()
	next := fn(s.data)
	if err := next.Validate(); err != nil {
		s.dataMu.Unlock()
		return Settings{}, err
	}
	if next == s.data {
		s.dataMu.Unlock()
		return next, nil
	}
	if err := s.save(next); err != nil {
		s.dataMu.Unlock()
		return Settings{}, err
	}
	s.data = next
	s.dataMu.Unlock()

	s.listenerMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenerMu.RUnlock()
	for _, l := range listeners {
		l.OnSettingsChange(next)
	}
	return next, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	// Start from defaults so fields missing from older files keep them.
	settings := Default()
	if err := json.Unmarshal(data, &settings); err != nil {
		slog.Warn("ignoring corrupted settings file", "path", s.path, "error", err)
		return nil
	}

	if err := settings.Validate(); err != nil {
		slog.Warn("ignoring invalid settings file", "path", s.path, "error", err)
		return nil
	}

	s.data = settings
	return nil
}

func (s *Store) save(settings Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "settings-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.path)
}
