package httpclient

import "net/url"

// JoinURL composes base and path segments using url.URL.JoinPath only,
// per spec.md §9's explicit ban on string-concatenation URL composition.
// A trailing slash on base must never change the result.
func JoinURL(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	joined := u.JoinPath(segments...)
	return joined.String(), nil
}
