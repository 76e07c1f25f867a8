package transport

import (
	"net/http"
	"net/url"
)

// SDKVersion is reported in the User-Agent header.
const SDKVersion = "2.0.1"

// PlatformName is the platform segment of the User-Agent header.
const PlatformName = "Go"

// UserAgent returns "{PlatformName}/{SDKVersion}".
func UserAgent() string {
	return PlatformName + "/" + SDKVersion
}

// SetHeaders sets the authorization and user agent headers on req.
func SetHeaders(req *http.Request, auth string) {
	req.Header.Set("Authorization", auth)
	req.Header.Set("User-Agent", UserAgent())
}

// ParseURL parses an absolute http(s) or ws(s) endpoint.
func ParseURL(name, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, URLError(name+" required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, URLError(name, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, URLError(name+": unsupported scheme "+u.Scheme, nil)
	}
	if u.Host == "" {
		return nil, URLError(name+": missing host", nil)
	}
	return u, nil
}
