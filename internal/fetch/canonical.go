package fetch

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped before computing a canonical_id so that two
// URLs differing only by campaign/tracking params dedup to the same page
// (spec §3 invariant 5).
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "fbclid": true, "gclid": true,
	"ref": true, "source": true,
}

// CanonicalizeURL normalizes scheme, host casing, trailing slash, and
// tracking query params into a stable canonical_id used for Page dedup.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for k := range q {
		if trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cleaned := url.Values{}
	for _, k := range keys {
		cleaned[k] = q[k]
	}
	u.RawQuery = cleaned.Encode()

	return u.String()
}
