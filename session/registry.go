package session

import (
	"sync"

	"github.com/agungkristd/session-switcher/site"
)

// Registry hands out one Manager per domain so that every client of a
// domain goes through the same operation queue.
type Registry struct {
	store  Store
	driver site.Driver
	opts   []Option

	mu       sync.Mutex
	managers map[string]*Manager
}

func NewRegistry(store Store, driver site.Driver, opts ...Option) *Registry {
	return &Registry{
		store:    store,
		driver:   driver,
		opts:     opts,
		managers: make(map[string]*Manager),
	}
}

func (r *Registry) Store() Store { return r.store }

func (r *Registry) Driver() site.Driver { return r.driver }

// ForSite returns the manager for the site's domain, pointing it at s.
func (r *Registry) ForSite(s site.Site) (*Manager, error) {
	domain := s.Host()
	if domain == "" {
		return nil, site.ErrNoSite
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[domain]; ok {
		m.Retarget(s)
		return m, nil
	}
	m := NewManager(s, r.store, r.driver, r.opts...)
	r.managers[domain] = m
	return m, nil
}

// ForDomain returns the manager for domain, keeping its current target.
// A new manager targets https://<domain>/.
func (r *Registry) ForDomain(domain string) (*Manager, error) {
	if domain == "" {
		return nil, site.ErrNoSite
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[domain]; ok {
		return m, nil
	}
	s, err := site.FromURL("https://" + domain + "/")
	if err != nil {
		return nil, err
	}
	m := NewManager(s, r.store, r.driver, r.opts...)
	r.managers[domain] = m
	return m, nil
}
