package main

import (
	"fmt"
	"path/filepath"

	"github.com/agungkristd/session-switcher/config"
	"github.com/agungkristd/session-switcher/session"
	"github.com/agungkristd/session-switcher/site"
)

// openStore opens the configured session backend. The returned func
// releases it.
func openStore(cfg *config.Config, watch bool) (session.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := session.OpenSQLiteStore(filepath.Join(cfg.DataDir, "sessions.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := session.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		if !watch {
			return s, func() {}, nil
		}
		if err := s.StartWatching(); err != nil {
			return nil, nil, fmt.Errorf("watch session store: %w", err)
		}
		return s, s.StopWatching, nil
	}
}

func openDriver(cfg *config.Config) (site.Driver, func()) {
	if cfg.Browser.Driver == config.DriverMemory {
		return site.NewMemoryDriver(""), func() {}
	}
	d := site.NewRodDriver(site.RodConfig{
		DebuggerURL: cfg.Browser.DebuggerURL,
		Headless:    cfg.Browser.Headless,
	})
	return d, func() { d.Close() }
}
