package guard

import (
	"net/url"
	"strings"
)

// ReturnURLParam carries the attempted URL through the login page.
const ReturnURLParam = "returnUrl"

// Navigator is the navigation layer as seen by the auth core.
type Navigator interface {
	// CurrentURL is the URL active right now, used as the return target.
	CurrentURL() string
	Navigate(url string)
}

// LoginURL builds the login route with a returnUrl query parameter. Unsafe
// or empty return targets, and the login route itself, are dropped.
func LoginURL(loginRoute, returnURL string) string {
	safe := SafeReturnURL(returnURL)
	if safe == "" {
		return loginRoute
	}
	if u, err := url.Parse(safe); err == nil && u.Path == loginRoute {
		return loginRoute
	}
	return loginRoute + "?" + url.Values{ReturnURLParam: {safe}}.Encode()
}

// SafeReturnURL only accepts same-origin relative paths so a crafted
// returnUrl cannot bounce the user to another site after login.
func SafeReturnURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return u.RequestURI()
}

// ReturnURLFrom extracts a safe returnUrl from a login URL's query.
func ReturnURLFrom(query url.Values) string {
	return SafeReturnURL(query.Get(ReturnURLParam))
}
