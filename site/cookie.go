package site

import "strings"

// CookieURL rebuilds the URL a cookie belongs to from its secure flag,
// domain and path. Browsers require a URL when setting or removing cookies.
func CookieURL(c Cookie) string {
	domain := strings.TrimPrefix(c.Domain, ".")
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + domain + path
}

// CookieParam is a cookie ready to be set. Domain is empty for host-only
// cookies: setting it would widen the cookie to subdomains.
type CookieParam struct {
	URL      string
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
	Expires  float64 // zero for session cookies
}

// SetParam converts a captured cookie into the parameters used to set it.
func SetParam(c Cookie) CookieParam {
	p := CookieParam{
		URL:      CookieURL(c),
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
	if !c.HostOnly {
		p.Domain = c.Domain
	}
	if !c.Session && c.ExpirationDate != nil {
		p.Expires = *c.ExpirationDate
	}
	return p
}

// MatchesHost reports whether a cookie would be sent to host (which may
// carry a port).
func MatchesHost(c Cookie, host string) bool {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	domain := strings.TrimPrefix(c.Domain, ".")
	if c.HostOnly {
		return strings.EqualFold(domain, host)
	}
	return strings.EqualFold(domain, host) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain))
}

// CookiesForHost keeps the cookies that would be sent to host. A cookie
// without a domain belongs to the host it was read from.
func CookiesForHost(cookies []Cookie, host string) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Domain == "" || MatchesHost(c, host) {
			out = append(out, c)
		}
	}
	return out
}
