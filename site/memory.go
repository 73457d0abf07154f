package site

import (
	"context"
	"slices"
	"sync"
)

// MemoryDriver keeps one in-process cookie jar and storage area per host.
// It backs dev mode and tests.
type MemoryDriver struct {
	mu      sync.Mutex
	current Site
	cookies map[string][]Cookie
	storage map[string]*Storage
	reloads map[string]int
}

func NewMemoryDriver(current string) *MemoryDriver {
	return &MemoryDriver{
		current: Site{URL: current},
		cookies: make(map[string][]Cookie),
		storage: make(map[string]*Storage),
		reloads: make(map[string]int),
	}
}

// Navigate changes the site returned by CurrentSite.
func (d *MemoryDriver) Navigate(rawURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = Site{URL: rawURL}
}

func (d *MemoryDriver) CurrentSite(_ context.Context) (Site, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current.Host() == "" {
		return Site{}, ErrNoSite
	}
	return d.current, nil
}

// SetLive replaces the live state of a host, simulating a user logging in.
func (d *MemoryDriver) SetLive(host string, snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies[host] = slices.Clone(snap.Cookies)
	d.storage[host] = copyStorage(snap.Storage)
}

// Live returns the current state of a host.
func (d *MemoryDriver) Live(host string) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Cookies: slices.Clone(d.cookies[host]),
		Storage: copyStorage(d.storage[host]),
	}
}

// Reloads returns how many times the host was reloaded.
func (d *MemoryDriver) Reloads(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads[host]
}

func (d *MemoryDriver) Capture(_ context.Context, s Site) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{Cookies: CookiesForHost(d.cookies[s.Host()], s.Host())}
	if !s.Restricted() {
		snap.Storage = copyStorage(d.storage[s.Host()])
		if snap.Storage == nil {
			snap.Storage = NewStorage()
		}
	}
	return snap, nil
}

func (d *MemoryDriver) Apply(_ context.Context, s Site, snap Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	host := s.Host()
	for _, c := range snap.Cookies {
		p := SetParam(c)
		applied := c
		applied.HostOnly = p.Domain == ""
		d.cookies[host] = append(d.cookies[host], applied)
	}
	if snap.Storage != nil && !s.Restricted() {
		d.storage[host] = copyStorage(snap.Storage)
	}
	return nil
}

func (d *MemoryDriver) Clear(_ context.Context, s Site) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cookies, s.Host())
	if !s.Restricted() {
		delete(d.storage, s.Host())
	}
	return nil
}

func (d *MemoryDriver) Reload(_ context.Context, s Site) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads[s.Host()]++
	return nil
}

func copyStorage(s *Storage) *Storage {
	if s == nil {
		return nil
	}
	out := NewStorage()
	for pair := s.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

var _ Driver = (*MemoryDriver)(nil)
