package audit

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Artifact areas used as the first key segment in blob storage.
const (
	AreaScreenshots = "screenshots"
	AreaVideos      = "videos"
	AreaDiffs       = "diffs"
	AreaConfigs     = "configs"
)

// ArtifactAreas lists every area a session may write into.
var ArtifactAreas = []string{AreaScreenshots, AreaVideos, AreaDiffs, AreaConfigs}

var (
	domainUnsafe = regexp.MustCompile(`[^\w.\-]`)
	pageUnsafe   = regexp.MustCompile(`[^\w\-]`)
)

const maxPageName = 50

// UniqueName derives a deterministic, filesystem-safe stem from a URL: the
// last path segment without extension plus the host, e.g. "pricing__example.com".
func UniqueName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "home__unknown"
	}
	domain := strings.ReplaceAll(u.Host, "www.", "")
	domain = domainUnsafe.ReplaceAllString(domain, "-")
	if domain == "" {
		domain = "unknown"
	}
	return pageName(u.Path) + "__" + domain
}

func pageName(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "home"
	}
	segments := strings.Split(p, "/")
	last := ""
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			last = segments[i]
			break
		}
	}
	name, _, _ := strings.Cut(last, ".")
	name = strings.ToLower(strings.Trim(pageUnsafe.ReplaceAllString(name, "-"), "-"))
	if name == "" || name == "index" || name == "home" {
		return "home"
	}
	if len(name) > maxPageName {
		name = name[:maxPageName-3] + "..."
	}
	return name
}

// ArtifactName is the file name for a URL rendered at a viewport.
func ArtifactName(rawURL string, v Viewport, ext string) string {
	return fmt.Sprintf("%s__%s.%s", UniqueName(rawURL), v, strings.TrimPrefix(ext, "."))
}

// ArtifactKey is the storage key of an artifact: area/session/browser/file.
// An empty browser is omitted.
func ArtifactKey(area, sessionID string, browser Browser, file string) string {
	if browser == "" {
		return path.Join(area, sessionID, file)
	}
	return path.Join(area, sessionID, string(browser), file)
}

// SessionPrefixes returns every artifact prefix owned by a session.
func SessionPrefixes(sessionID string) []string {
	out := make([]string, 0, len(ArtifactAreas))
	for _, area := range ArtifactAreas {
		out = append(out, area+"/"+sessionID+"/")
	}
	return out
}
