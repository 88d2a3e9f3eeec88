// Package resolver turns archive names found in a listing into absolute URLs.
package resolver

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Resolve returns the absolute download URL for name as found on listingURL.
//
//   - "http://..." or "https://..." is returned unchanged.
//   - "/REPORTS/..." is joined onto the listing's origin.
//   - "//host/..." takes the listing's scheme.
//   - anything else is resolved relative to the listing directory.
func Resolve(name, listingURL string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty archive name")
	}

	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return name, nil
	}

	base, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL %q: %w", listingURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("listing URL %q is not absolute", listingURL)
	}

	if strings.HasPrefix(name, "/") && !strings.HasPrefix(name, "//") {
		return base.Scheme + "://" + base.Host + name, nil
	}

	ref, err := url.Parse(name)
	if err != nil {
		return "", fmt.Errorf("invalid archive name %q: %w", name, err)
	}
	return directoryOf(base).ResolveReference(ref).String(), nil
}

// directoryOf treats a listing path whose last segment has no extension as a
// directory, so ".../Dispatch_SCADA" and ".../Dispatch_SCADA/" resolve alike.
func directoryOf(u *url.URL) *url.URL {
	dir := *u
	dir.RawQuery = ""
	dir.Fragment = ""
	if dir.Path == "" {
		dir.Path = "/"
	}
	if !strings.HasSuffix(dir.Path, "/") && !strings.Contains(path.Base(dir.Path), ".") {
		dir.Path += "/"
		dir.RawPath = ""
	}
	return &dir
}
