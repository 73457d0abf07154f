// Package site captures and applies a website's authentication state
// (cookie jar and local storage) for the session core.
package site

import (
	"context"
	"errors"
	"net/url"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrNoSite = errors.New("no active site")

// Cookie mirrors the fields of a captured browser cookie. JSON names match
// the records written by the browser extension so existing exports decode.
type Cookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	HostOnly       bool     `json:"hostOnly"`
	Path           string   `json:"path"`
	Secure         bool     `json:"secure"`
	HTTPOnly       bool     `json:"httpOnly"`
	SameSite       SameSite `json:"sameSite,omitempty"`
	Session        bool     `json:"session"`
	ExpirationDate *float64 `json:"expirationDate,omitempty"` // seconds since epoch
	StoreID        string   `json:"storeId,omitempty"`
}

type SameSite string

const (
	SameSiteNoRestriction SameSite = "no_restriction"
	SameSiteLax           SameSite = "lax"
	SameSiteStrict        SameSite = "strict"
	SameSiteUnspecified   SameSite = "unspecified"
)

// Storage is a local storage snapshot. Keys keep their capture order.
type Storage = orderedmap.OrderedMap[string, string]

// NewStorage builds a storage snapshot from alternating key/value pairs.
func NewStorage(kv ...string) *Storage {
	s := orderedmap.New[string, string]()
	for i := 0; i+1 < len(kv); i += 2 {
		s.Set(kv[i], kv[i+1])
	}
	return s
}

// Snapshot is the captured state of one site.
type Snapshot struct {
	Cookies []Cookie
	Storage *Storage // nil when capture was skipped
}

// Site identifies the page whose state is captured or applied.
type Site struct {
	URL   string `json:"url"`
	TabID string `json:"tab_id,omitempty"`
}

// Host returns the partition key for the site, e.g. "localhost:3000".
func (s Site) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

var restrictedPrefixes = []string{
	"chrome://",
	"about:",
	"edge://",
	"devtools://",
	"chrome-extension://",
}

// Restricted reports whether scripts cannot run on the page, in which case
// local storage is neither captured nor applied.
func (s Site) Restricted() bool {
	if s.URL == "" {
		return true
	}
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(s.URL, p) {
			return true
		}
	}
	return false
}

// FromURL returns a Site for rawURL, or ErrNoSite if it has no host.
func FromURL(rawURL string) (Site, error) {
	s := Site{URL: rawURL}
	if s.Host() == "" {
		return Site{}, ErrNoSite
	}
	return s, nil
}

// Driver reads and writes site state in the browser.
type Driver interface {
	CurrentSite(ctx context.Context) (Site, error)
	Capture(ctx context.Context, s Site) (Snapshot, error)
	// Apply sets the snapshot's cookies and storage. Callers clear first.
	Apply(ctx context.Context, s Site, snap Snapshot) error
	Clear(ctx context.Context, s Site) error
	Reload(ctx context.Context, s Site) error
}
