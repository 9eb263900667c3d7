package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeBasename builds a filesystem-safe name for raw from its host, path, and
// a digest prefix that keeps distinct URLs apart.
func SafeBasename(raw, digest string) string {
	if len(digest) > 16 {
		digest = digest[:16]
	}
	u, err := url.Parse(raw)
	if err != nil {
		return digest
	}
	host := invalidFilenameChars.ReplaceAllString(u.Hostname(), "_")
	p := strings.Trim(u.EscapedPath(), "/")
	if p == "" {
		p = "root"
	}
	p = invalidFilenameChars.ReplaceAllString(p, "_")
	return fmt.Sprintf("%s_%s_%s", host, p, digest)
}
