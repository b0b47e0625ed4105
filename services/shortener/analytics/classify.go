package analytics

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/artromone/linkpulse/services/shortener/models"
)

var (
	tabletPattern  = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk`)
	androidPattern = regexp.MustCompile(`(?i)android`)
	mobiPattern    = regexp.MustCompile(`(?i)mobi`)
	mobilePattern  = regexp.MustCompile(`Mobile|Android|iP(hone|od)|IEMobile|BlackBerry|Kindle|Silk-Accelerated|(hpw|web)OS|Opera M(obi|ini)`)
)

// ClassifyDevice buckets a user agent. Tablet rules win over mobile ones. An
// Android agent is a tablet unless "mobi" follows the last Android token.
func ClassifyDevice(userAgent string) models.DeviceClass {
	if tabletPattern.MatchString(userAgent) || isAndroidTablet(userAgent) {
		return models.DeviceTablet
	}
	if mobilePattern.MatchString(userAgent) {
		return models.DeviceMobile
	}
	return models.DeviceDesktop
}

func isAndroidTablet(userAgent string) bool {
	matches := androidPattern.FindAllStringIndex(userAgent, -1)
	if len(matches) == 0 {
		return false
	}
	last := matches[len(matches)-1]
	return !mobiPattern.MatchString(userAgent[last[1]:])
}

// ReferrerDomain returns the referrer's hostname, or models.ReferrerDirect
// when there is none to report.
func ReferrerDomain(referer string) string {
	if referer == "" {
		return models.ReferrerDirect
	}
	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return models.ReferrerDirect
	}
	return u.Hostname()
}

// ClientIP picks the visitor address from proxy headers, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	for _, header := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
