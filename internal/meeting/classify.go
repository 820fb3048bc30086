package meeting

import (
	"net/url"
	"regexp"
	"strings"
)

// Category identifies which meeting platform page a tab is showing.
type Category string

const (
	CategoryNone         Category = ""
	CategoryZoom         Category = "zoom"
	CategoryZoomFallback Category = "zoom-fallback"
	CategoryTeams        Category = "teams"
	CategoryMeet         Category = "meet"
)

const (
	zoomHost  = "zoom.us"
	teamsHost = "teams.microsoft.com"
	meetHost  = "meet.google.com"

	teamsLauncherPrefix = "/dl/launcher/"
)

// meetRoomPattern is the abc-defg-hij meeting code grammar.
var meetRoomPattern = regexp.MustCompile(`^/[a-z]{3}-[a-z]{4}-[a-z]{3}/?$`)

// zoomExcludedPrefixes never get monitored (account pages the user keeps open).
var zoomExcludedPrefixes = []string{"/profile", "/settings"}

// zoomMeetingSegments mark join/start/webinar/personal-room/post-attendee pages.
var zoomMeetingSegments = []string{"/j/", "/s/", "/w/", "/my/", "/postattendee"}

// IsZoomDomain reports whether rawURL points at zoom.us or one of its subdomains.
func IsZoomDomain(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok {
		return false
	}
	return isZoomHost(u.Hostname())
}

// IsMeetingHost reports whether rawURL is on any platform Classify knows,
// whatever its path.
func IsMeetingHost(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok {
		return false
	}
	host := u.Hostname()
	return isZoomHost(host) || host == teamsHost || host == meetHost
}

// Classify maps a page URL to its meeting category. Unparseable or unrelated
// URLs yield CategoryNone.
func Classify(rawURL string) Category {
	u, ok := parse(rawURL)
	if !ok {
		return CategoryNone
	}
	host := u.Hostname()
	path := u.EscapedPath()

	switch {
	case isZoomHost(host):
		if isZoomExcluded(path) {
			return CategoryNone
		}
		for _, seg := range zoomMeetingSegments {
			if strings.Contains(path, seg) {
				return CategoryZoom
			}
		}
		return CategoryZoomFallback
	case host == teamsHost && strings.HasPrefix(path, teamsLauncherPrefix):
		return CategoryTeams
	case host == meetHost:
		return CategoryMeet
	}
	return CategoryNone
}

// IsMeetingRoom reports whether rawURL is a Meet page bound to a meeting code.
func IsMeetingRoom(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok || u.Hostname() != meetHost {
		return false
	}
	return meetRoomPattern.MatchString(u.EscapedPath())
}

// IsLandingPage reports whether rawURL is the Meet home/entry screen. It is
// never true for a meeting room or a /lookup/ page.
func IsLandingPage(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok || u.Hostname() != meetHost {
		return false
	}
	path := u.EscapedPath()
	if meetRoomPattern.MatchString(path) || strings.HasPrefix(path, "/lookup/") {
		return false
	}
	switch {
	case path == "" || path == "/":
		return true
	case path == "/landing" || strings.HasPrefix(path, "/landing/"):
		return true
	}
	return false
}

func parse(rawURL string) (*url.URL, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Host = strings.ToLower(u.Host)
	return u, true
}

func isZoomHost(host string) bool {
	return host == zoomHost || strings.HasSuffix(host, "."+zoomHost)
}

func isZoomExcluded(path string) bool {
	if path == "" || path == "/" {
		return true
	}
	for _, prefix := range zoomExcludedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
