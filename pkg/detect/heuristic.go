package detect

import (
	"strings"

	"github.com/avct/uasurfer"
)

// Tokens that identify HTTP libraries and scrapers rather than
// browsers. Matched case-insensitively against the whole user agent.
var nonBrowserTokens = []string{
	"curl",
	"wget",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"java/",
	"okhttp",
	"scrapy",
	"libwww",
	"aiohttp",
}

// suspiciousUserAgent flags requests no signature identified but that
// still do not look like a browser: an empty user agent, a known
// non-browser token, or a string uasurfer can resolve to neither a
// browser nor a device class.
func suspiciousUserAgent(ua string) bool {
	if ua == "" {
		return true
	}
	lower := strings.ToLower(ua)
	for _, tok := range nonBrowserTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	parsed := uasurfer.Parse(ua)
	return parsed.Browser.Name == uasurfer.BrowserUnknown && parsed.DeviceType == uasurfer.DeviceUnknown
}
