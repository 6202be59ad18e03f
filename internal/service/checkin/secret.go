package checkin

import (
	"net/url"
	"strings"
)

var secretParams = []string{"secret", "code", "s", "ticket"}

// ExtractSecret returns the redemption secret from a scanner payload: a
// bare code, or a URL carrying it in a known query parameter or as its
// last path segment.
func ExtractSecret(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if !strings.ContainsAny(s, "/?") {
		return s
	}

	target := s
	if !strings.Contains(s, "://") && !strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "?") {
		// host without scheme, e.g. wired.berlin/t/ABC123
		target = "//" + s
	}

	u, err := url.Parse(target)
	if err != nil {
		return s
	}

	q := u.Query()
	for _, k := range secretParams {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}

	segs := strings.Split(u.Path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == "" {
			continue
		}
		if v, err := url.PathUnescape(segs[i]); err == nil {
			return v
		}
		return segs[i]
	}

	return s
}
