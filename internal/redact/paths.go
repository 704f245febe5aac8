package redact

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultSensitivePaths are path-hint globs dropped under the manager profile.
var DefaultSensitivePaths = []string{
	"**/.env",
	"**/.env.*",
	"**/*secret*",
	"**/*secret*/**",
	"**/*credential*",
	"**/*.pem",
	"**/*.key",
	"**/id_rsa*",
	"**/.ssh/**",
	"**/vault/**",
}

// pathMatcher reports whether a touched path matches any sensitive glob.
type pathMatcher struct {
	patterns []string
}

func newPathMatcher(patterns []string) pathMatcher {
	return pathMatcher{patterns: patterns}
}

func (m pathMatcher) sensitive(p string) bool {
	// Leading "/" keeps "**/" patterns anchored at repository-root entries.
	clean := "/" + strings.TrimPrefix(path.Clean(strings.ToLower(p)), "/")
	for _, pattern := range m.patterns {
		if ok, err := doublestar.Match("/"+strings.TrimPrefix(pattern, "/"), clean); err == nil && ok {
			return true
		}
	}
	return false
}

// filter returns the paths that are not sensitive, or nil if none remain.
func (m pathMatcher) filter(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !m.sensitive(p) {
			out = append(out, p)
		}
	}
	return out
}
