package session

import (
	"errors"
	"slices"
	"time"

	"github.com/agungkristd/session-switcher/site"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidName     = errors.New("invalid session name")
	// ErrConflict is returned by Commit when the stored record changed since
	// it was loaded.
	ErrConflict = errors.New("domain record changed concurrently")
)

// UnixMilli is a timestamp stored as milliseconds since the epoch.
type UnixMilli int64

func NewUnixMilli(t time.Time) UnixMilli { return UnixMilli(t.UnixMilli()) }

func (m UnixMilli) Time() time.Time { return time.UnixMilli(int64(m)) }

// Session is a named snapshot of a site's cookies and local storage.
type Session struct {
	Name       string        `json:"name"`
	CreatedAt  UnixMilli     `json:"timestamp"`
	UpdatedAt  UnixMilli     `json:"updatedAt,omitempty"`
	LastUsedAt *UnixMilli    `json:"lastUsed,omitempty"`
	Cookies    []site.Cookie `json:"cookies"`
	Storage    *site.Storage `json:"localStorage,omitempty"`
}

// DomainRecord is everything persisted for one domain. Sessions and the
// active pointer are always written together.
type DomainRecord struct {
	Sessions          []Session `json:"sessions"`
	ActiveSessionName string    `json:"activeSessionName,omitempty"`
	// Revision increments on every commit; zero means never stored.
	Revision int64 `json:"revision"`
}

// IndexOf returns the position of the named session or -1.
func (r DomainRecord) IndexOf(name string) int {
	return slices.IndexFunc(r.Sessions, func(s Session) bool { return s.Name == name })
}

// Clone returns a copy whose session slice can be modified freely.
func (r DomainRecord) Clone() DomainRecord {
	r.Sessions = slices.Clone(r.Sessions)
	if r.Sessions == nil {
		r.Sessions = []Session{}
	}
	return r
}

// heal clears an active pointer that names no session. It reports whether
// the record changed.
func (r *DomainRecord) heal() bool {
	if r.ActiveSessionName == "" || r.IndexOf(r.ActiveSessionName) >= 0 {
		return false
	}
	r.ActiveSessionName = ""
	return true
}

// ChangeEvent reports a committed change to one domain.
type ChangeEvent struct {
	Domain string
	Record DomainRecord
}

// OnChangeListener receives notifications when a domain record changes.
//
// Listeners are called outside the store's mutex but must not call back into
// the store synchronously.
type OnChangeListener interface {
	OnSessionChange(event ChangeEvent)
}
