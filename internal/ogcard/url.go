package ogcard

import (
	"net/http"
	"net/url"
)

// NormalizePageURL canonicalizes a page URL for use as a mapping key.
// The URL must be absolute with an http or https scheme. Fragments are
// stripped, so two URLs differing only by fragment collapse to the same
// mapping.
func NormalizePageURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", NewError(CodeInvalidPageURL, "page_url must be a valid URL", http.StatusBadRequest)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", NewError(CodeInvalidPageURL, "page_url must use http or https", http.StatusBadRequest)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
