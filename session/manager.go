package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agungkristd/session-switcher/site"
)

// View is what a client renders after every operation.
type View struct {
	Domain     string    `json:"domain"`
	Sessions   []Session `json:"sessions"`
	ActiveName string    `json:"active_name,omitempty"`
}

type SaveOptions struct {
	// SkipActivation leaves the active pointer untouched. Auto-saves use it.
	SkipActivation bool
}

// Observer is told about every finished operation.
type Observer interface {
	ObserveOperation(domain, op string, err error)
	ObserveAutoSave(domain string)
}

type Option func(*Manager)

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager runs the session lifecycle for one domain. Operations are
// serialized: each one runs to completion before the next starts.
type Manager struct {
	domain   string
	store    Store
	driver   site.Driver
	observer Observer
	now      func() time.Time
	log      *slog.Logger

	siteMu sync.RWMutex
	target site.Site

	opMu sync.Mutex
}

func NewManager(target site.Site, store Store, driver site.Driver, opts ...Option) *Manager {
	m := &Manager{
		domain: target.Host(),
		store:  store,
		driver: driver,
		now:    time.Now,
		target: target,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = slog.With("domain", m.domain)
	return m
}

func (m *Manager) Domain() string { return m.domain }

// Retarget points the manager at another tab of the same domain.
func (m *Manager) Retarget(s site.Site) {
	m.siteMu.Lock()
	defer m.siteMu.Unlock()
	m.target = s
}

func (m *Manager) currentSite() site.Site {
	m.siteMu.RLock()
	defer m.siteMu.RUnlock()
	return m.target
}

// errNoop aborts an update that would not change anything.
var errNoop = errors.New("no-op")

// View returns the current sessions and active pointer.
func (m *Manager) View(ctx context.Context) (View, error) {
	rec, err := m.store.Load(ctx, m.domain)
	if err != nil {
		return View{}, err
	}
	return m.viewOf(rec), nil
}

func (m *Manager) viewOf(rec DomainRecord) View {
	return View{
		Domain:     m.domain,
		Sessions:   rec.Clone().Sessions,
		ActiveName: rec.ActiveSessionName,
	}
}

// mutate applies fn through Update. A fn returning errNoop leaves the store
// untouched and yields the current view.
func (m *Manager) mutate(ctx context.Context, fn func(rec *DomainRecord) error) (View, error) {
	rec, err := Update(ctx, m.store, m.domain, fn)
	if errors.Is(err, errNoop) {
		return m.View(ctx)
	}
	if err != nil {
		return View{}, err
	}
	return m.viewOf(rec), nil
}

func (m *Manager) observe(op string, err error) {
	if err != nil {
		m.log.Warn("session operation failed", "op", op, "error", err)
	}
	if m.observer != nil {
		m.observer.ObserveOperation(m.domain, op, err)
	}
}

// --- Save ---

// Save captures the live site state under name. An existing session with
// that name is overwritten in place.
func (m *Manager) Save(ctx context.Context, name string, opts SaveOptions) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	v, err := m.save(ctx, name, opts)
	m.observe("save", err)
	return v, err
}

func (m *Manager) save(ctx context.Context, name string, opts SaveOptions) (View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return View{}, ErrInvalidName
	}

	snap, err := m.driver.Capture(ctx, m.currentSite())
	if err != nil {
		return View{}, fmt.Errorf("capture %s: %w", m.domain, err)
	}
	if snap.Cookies == nil {
		snap.Cookies = []site.Cookie{}
	}

	now := NewUnixMilli(m.now())
	v, err := m.mutate(ctx, func(rec *DomainRecord) error {
		fresh := Session{
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
			Cookies:   snap.Cookies,
			Storage:   snap.Storage,
		}
		if i := rec.IndexOf(name); i >= 0 {
			prev := rec.Sessions[i]
			if prev.CreatedAt != 0 {
				fresh.CreatedAt = prev.CreatedAt
			}
			fresh.LastUsedAt = prev.LastUsedAt
			rec.Sessions[i] = fresh
		} else {
			rec.Sessions = append(rec.Sessions, fresh)
		}
		if !opts.SkipActivation {
			rec.ActiveSessionName = name
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	m.log.Info("session saved", "name", name, "cookies", len(snap.Cookies), "skipActivation", opts.SkipActivation)
	return v, nil
}

// autoSave persists the live state into the active session, if any, without
// touching the pointer.
func (m *Manager) autoSave(ctx context.Context, active string) error {
	if _, err := m.save(ctx, active, SaveOptions{SkipActivation: true}); err != nil {
		return fmt.Errorf("auto-save %q: %w", active, err)
	}
	if m.observer != nil {
		m.observer.ObserveAutoSave(m.domain)
	}
	return nil
}

// --- Restore ---

// Restore replaces the live site state with the named session. The
// currently active session, if different, is saved first. The page is
// reloaded only after every write has completed.
func (m *Manager) Restore(ctx context.Context, name string) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	v, err := m.restore(ctx, name)
	m.observe("restore", err)
	return v, err
}

func (m *Manager) restore(ctx context.Context, name string) (View, error) {
	rec, err := m.store.Load(ctx, m.domain)
	if err != nil {
		return View{}, err
	}
	idx := rec.IndexOf(name)
	if idx < 0 {
		return View{}, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	target := rec.Sessions[idx]

	if active := rec.ActiveSessionName; active != "" && active != name {
		if err := m.autoSave(ctx, active); err != nil {
			return View{}, err
		}
	}

	s := m.currentSite()
	if err := m.driver.Clear(ctx, s); err != nil {
		return View{}, fmt.Errorf("clear %s: %w", m.domain, err)
	}
	snap := site.Snapshot{Cookies: target.Cookies, Storage: target.Storage}
	if err := m.driver.Apply(ctx, s, snap); err != nil {
		return View{}, fmt.Errorf("apply %q: %w", name, err)
	}

	now := NewUnixMilli(m.now())
	v, err := m.mutate(ctx, func(rec *DomainRecord) error {
		i := rec.IndexOf(name)
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrSessionNotFound, name)
		}
		rec.Sessions[i].LastUsedAt = &now
		rec.ActiveSessionName = name
		return nil
	})
	if err != nil {
		return View{}, err
	}

	m.reload(ctx, s)
	m.log.Info("session restored", "name", name)
	return v, nil
}

func (m *Manager) reload(ctx context.Context, s site.Site) {
	if err := m.driver.Reload(ctx, s); err != nil {
		m.log.Warn("failed to reload page", "url", s.URL, "error", err)
	}
}

// --- Rename ---

// Rename renames the session at index. A different session already named
// newName is replaced. Stale indexes and renames to the same name are no-ops.
func (m *Manager) Rename(ctx context.Context, index int, newName string) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	v, err := m.rename(ctx, index, newName)
	m.observe("rename", err)
	return v, err
}

func (m *Manager) rename(ctx context.Context, index int, newName string) (View, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return View{}, ErrInvalidName
	}
	var oldName string
	v, err := m.mutate(ctx, func(rec *DomainRecord) error {
		oldName = ""
		i := index
		if i < 0 || i >= len(rec.Sessions) {
			return errNoop
		}
		if rec.Sessions[i].Name == newName {
			return errNoop
		}
		oldName = rec.Sessions[i].Name

		if j := rec.IndexOf(newName); j >= 0 {
			// The replaced session's live state has no home any more.
			if rec.ActiveSessionName == newName {
				rec.ActiveSessionName = ""
			}
			rec.Sessions = slices.Delete(rec.Sessions, j, j+1)
			if j < i {
				i--
			}
		}

		rec.Sessions[i].Name = newName
		if rec.ActiveSessionName == oldName {
			rec.ActiveSessionName = newName
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	if oldName != "" {
		m.log.Info("session renamed", "from", oldName, "to", newName)
	}
	return v, nil
}

// --- Delete ---

// Delete removes the session at index, clearing the active pointer if it
// named that session.
func (m *Manager) Delete(ctx context.Context, index int) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var deleted string
	v, err := m.mutate(ctx, func(rec *DomainRecord) error {
		deleted = ""
		if index < 0 || index >= len(rec.Sessions) {
			return errNoop
		}
		name := rec.Sessions[index].Name
		if rec.ActiveSessionName == name {
			rec.ActiveSessionName = ""
		}
		rec.Sessions = slices.Delete(rec.Sessions, index, index+1)
		deleted = name
		return nil
	})
	if err == nil && deleted != "" {
		m.log.Info("session deleted", "name", deleted)
	}
	m.observe("delete", err)
	return v, err
}

// --- Reorder ---

// Reorder moves the session at from to position to.
func (m *Manager) Reorder(ctx context.Context, from, to int) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	v, err := m.mutate(ctx, func(rec *DomainRecord) error {
		n := len(rec.Sessions)
		if from < 0 || from >= n || to < 0 || to >= n || from == to {
			return errNoop
		}
		moved := rec.Sessions[from]
		rec.Sessions = slices.Delete(rec.Sessions, from, from+1)
		rec.Sessions = slices.Insert(rec.Sessions, to, moved)
		return nil
	})
	m.observe("reorder", err)
	return v, err
}

// --- Reset ---

// ResetSite logs the site out without losing the active session: the
// session is saved, then cookies and storage are cleared and the pointer is
// dropped.
func (m *Manager) ResetSite(ctx context.Context) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	v, err := m.resetSite(ctx)
	m.observe("reset", err)
	return v, err
}

func (m *Manager) resetSite(ctx context.Context) (View, error) {
	rec, err := m.store.Load(ctx, m.domain)
	if err != nil {
		return View{}, err
	}
	if active := rec.ActiveSessionName; active != "" {
		if err := m.autoSave(ctx, active); err != nil {
			return View{}, err
		}
	}

	s := m.currentSite()
	if err := m.driver.Clear(ctx, s); err != nil {
		return View{}, fmt.Errorf("clear %s: %w", m.domain, err)
	}

	v, err := m.mutate(ctx, func(rec *DomainRecord) error {
		if rec.ActiveSessionName == "" {
			return errNoop
		}
		rec.ActiveSessionName = ""
		return nil
	})
	if err != nil {
		return View{}, err
	}

	m.reload(ctx, s)
	m.log.Info("site reset")
	return v, nil
}

// --- Name submission ---

// SubmitName handles a name typed into the create/rename form. When the name
// belongs to another session nothing is changed and the returned submission
// carries a PendingAction for Confirm.
func (m *Manager) SubmitName(ctx context.Context, name string, mode Mode) (Submission, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	sub, err := m.submitName(ctx, name, mode)
	m.observe("submit", err)
	return sub, err
}

func (m *Manager) submitName(ctx context.Context, name string, mode Mode) (Submission, error) {
	if !mode.IsValid() {
		return Submission{}, fmt.Errorf("invalid mode %q", mode.Kind)
	}

	rec, err := m.store.Load(ctx, m.domain)
	if err != nil {
		return Submission{}, err
	}
	current := m.viewOf(rec)

	name = strings.TrimSpace(name)
	if name == "" {
		return Submission{Outcome: OutcomeIgnored, View: current}, nil
	}

	if mode.Kind == ModeRename {
		if mode.Index < 0 || mode.Index >= len(rec.Sessions) {
			return Submission{Outcome: OutcomeIgnored, View: current}, nil
		}
		if rec.Sessions[mode.Index].Name == name {
			return Submission{Outcome: OutcomeUnchanged, View: current}, nil
		}
	}

	pending := PendingAction{Name: name, Mode: mode}
	if rec.IndexOf(name) >= 0 {
		return Submission{Outcome: OutcomeNeedsConfirmation, Pending: &pending, View: current}, nil
	}

	v, err := m.run(ctx, pending)
	if err != nil {
		return Submission{}, err
	}
	return Submission{Outcome: OutcomeApplied, View: v}, nil
}

// Confirm carries out a submission the user agreed to. It does not check for
// collisions again.
func (m *Manager) Confirm(ctx context.Context, p PendingAction) (View, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	v, err := m.run(ctx, p)
	m.observe("confirm", err)
	return v, err
}

func (m *Manager) run(ctx context.Context, p PendingAction) (View, error) {
	switch p.Mode.Kind {
	case ModeCreate:
		return m.save(ctx, p.Name, SaveOptions{})
	case ModeRename:
		return m.rename(ctx, p.Mode.Index, p.Name)
	default:
		return View{}, fmt.Errorf("invalid mode %q", p.Mode.Kind)
	}
}
