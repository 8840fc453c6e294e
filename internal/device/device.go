// Package device turns a User-Agent header into a short label recorded on
// check-in, e.g. "Chrome on Android 14".
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// maxLabelLength bounds what is stored per session.
const maxLabelLength = 120

// ParseUserAgent returns "<browser> on <os>", or "Unknown Device" for an
// empty header. Bots are labelled as such.
func ParseUserAgent(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return unknownDevice
	}

	ua := useragent.New(header)
	if ua.Bot() {
		name, _ := ua.Browser()
		return truncate("Bot " + name)
	}

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	osName := ua.OS()
	if osName == "" {
		osName = ua.Platform()
	}
	if osName == "" {
		osName = "Unknown OS"
	}
	return truncate(browser + " on " + osName)
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLabelLength {
		return s[:maxLabelLength]
	}
	return s
}
