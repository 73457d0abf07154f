package site

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type RodConfig struct {
	// DebuggerURL of a running Chrome, either the websocket URL or a
	// host:port to resolve it from. Empty launches one.
	DebuggerURL string
	Headless    bool
}

// RodDriver drives a Chrome instance over the DevTools protocol.
type RodDriver struct {
	cfg RodConfig

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRodDriver(cfg RodConfig) *RodDriver {
	return &RodDriver{cfg: cfg}
}

func (d *RodDriver) connect() (*rod.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return d.browser, nil
		}
		slog.Warn("stale browser connection, reconnecting")
		_ = d.browser.Close()
		d.browser = nil
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" {
		u, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	} else if !strings.HasPrefix(controlURL, "ws") {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve debugger url %s: %w", controlURL, err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser
	slog.Info("connected to chrome", "controlURL", controlURL)
	return browser, nil
}

// Close disconnects from the browser.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

// CurrentSite returns the first regular page target. Chrome lists the most
// recently focused tab first.
func (d *RodDriver) CurrentSite(ctx context.Context) (Site, error) {
	browser, err := d.connect()
	if err != nil {
		return Site{}, err
	}
	pages, err := browser.Context(ctx).Pages()
	if err != nil {
		return Site{}, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if info.Type != proto.TargetTargetInfoTypePage || strings.HasPrefix(info.URL, "devtools://") {
			continue
		}
		s := Site{URL: info.URL, TabID: string(info.TargetID)}
		if s.Host() == "" {
			continue
		}
		return s, nil
	}
	return Site{}, ErrNoSite
}

// page finds the tab for s and returns it with the tab's actual URL, which
// may differ from s.URL when s was built from a bare domain.
func (d *RodDriver) page(ctx context.Context, s Site) (*rod.Page, Site, error) {
	browser, err := d.connect()
	if err != nil {
		return nil, Site{}, err
	}
	if s.TabID != "" {
		p, err := browser.PageFromTarget(proto.TargetTargetID(s.TabID))
		if err == nil {
			if info, err := p.Info(); err == nil {
				return p.Context(ctx), Site{URL: info.URL, TabID: s.TabID}, nil
			}
		}
		slog.Debug("tab gone, searching by host", "tabId", s.TabID, "error", err)
	}
	pages, err := browser.Pages()
	if err != nil {
		return nil, Site{}, fmt.Errorf("list pages: %w", err)
	}
	host := s.Host()
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if (Site{URL: info.URL}).Host() == host {
			return p.Context(ctx), Site{URL: info.URL, TabID: string(info.TargetID)}, nil
		}
	}
	return nil, Site{}, fmt.Errorf("%w: no tab for %s", ErrNoSite, host)
}

func (d *RodDriver) Capture(ctx context.Context, s Site) (Snapshot, error) {
	page, s, err := d.page(ctx, s)
	if err != nil {
		return Snapshot{}, err
	}

	res, err := proto.NetworkGetCookies{Urls: []string{s.URL}}.Call(page)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, fromProto(c))
	}
	// Partitioned and parent-frame cookies can come back for other hosts.
	snap := Snapshot{Cookies: CookiesForHost(cookies, s.Host())}

	if s.Restricted() {
		slog.Info("skipping local storage capture for restricted URL", "url", s.URL)
		return snap, nil
	}
	storage, err := captureStorage(page)
	if err != nil {
		slog.Warn("failed to capture local storage", "url", s.URL, "error", err)
		storage = NewStorage()
	}
	snap.Storage = storage
	return snap, nil
}

func (d *RodDriver) Apply(ctx context.Context, s Site, snap Snapshot) error {
	page, s, err := d.page(ctx, s)
	if err != nil {
		return err
	}

	params := make([]*proto.NetworkCookieParam, 0, len(snap.Cookies))
	for _, c := range snap.Cookies {
		params = append(params, toProto(SetParam(c)))
	}
	if len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
	}

	if snap.Storage == nil || s.Restricted() {
		return nil
	}
	data, err := json.Marshal(snap.Storage)
	if err != nil {
		return err
	}
	_, err = page.Evaluate(&rod.EvalOptions{
		JS: `(data) => {
			localStorage.clear();
			sessionStorage.clear();
			const items = JSON.parse(data);
			for (const [k, v] of Object.entries(items)) localStorage.setItem(k, v);
		}`,
		JSArgs:       []interface{}{string(data)},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		slog.Warn("failed to restore local storage", "url", s.URL, "error", err)
	}
	return nil
}

func (d *RodDriver) Clear(ctx context.Context, s Site) error {
	page, s, err := d.page(ctx, s)
	if err != nil {
		return err
	}

	if !s.Restricted() {
		_, err := page.Evaluate(&rod.EvalOptions{
			JS:           `() => { localStorage.clear(); sessionStorage.clear(); }`,
			ByValue:      true,
			AwaitPromise: true,
		})
		if err != nil {
			slog.Warn("failed to clear storage", "url", s.URL, "error", err)
		}
	}

	res, err := proto.NetworkGetCookies{Urls: []string{s.URL}}.Call(page)
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}
	for _, c := range res.Cookies {
		err := proto.NetworkDeleteCookies{
			Name: c.Name,
			URL:  CookieURL(fromProto(c)),
		}.Call(page)
		if err != nil {
			return fmt.Errorf("remove cookie %s: %w", c.Name, err)
		}
	}
	return nil
}

func (d *RodDriver) Reload(ctx context.Context, s Site) error {
	page, _, err := d.page(ctx, s)
	if err != nil {
		return err
	}
	return page.Reload()
}

func captureStorage(page *rod.Page) (*Storage, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           `() => JSON.stringify(window.localStorage)`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	storage := NewStorage()
	if res == nil || res.Value.Nil() {
		return storage, nil
	}
	if err := json.Unmarshal([]byte(res.Value.String()), storage); err != nil {
		return nil, err
	}
	return storage, nil
}

func fromProto(c *proto.NetworkCookie) Cookie {
	out := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		HostOnly: !strings.HasPrefix(c.Domain, "."),
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		Session:  c.Session,
		SameSite: SameSiteUnspecified,
	}
	switch c.SameSite {
	case proto.NetworkCookieSameSiteStrict:
		out.SameSite = SameSiteStrict
	case proto.NetworkCookieSameSiteLax:
		out.SameSite = SameSiteLax
	case proto.NetworkCookieSameSiteNone:
		out.SameSite = SameSiteNoRestriction
	}
	if !c.Session {
		exp := float64(c.Expires)
		out.ExpirationDate = &exp
	}
	return out
}

func toProto(p CookieParam) *proto.NetworkCookieParam {
	out := &proto.NetworkCookieParam{
		Name:     p.Name,
		Value:    p.Value,
		URL:      p.URL,
		Domain:   p.Domain,
		Path:     p.Path,
		Secure:   p.Secure,
		HTTPOnly: p.HTTPOnly,
		Expires:  proto.TimeSinceEpoch(p.Expires),
	}
	switch p.SameSite {
	case SameSiteStrict:
		out.SameSite = proto.NetworkCookieSameSiteStrict
	case SameSiteLax:
		out.SameSite = proto.NetworkCookieSameSiteLax
	case SameSiteNoRestriction:
		out.SameSite = proto.NetworkCookieSameSiteNone
	}
	return out
}

var _ Driver = (*RodDriver)(nil)
