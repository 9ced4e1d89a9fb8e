package identity

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceLabel renders a User-Agent as "Browser on OS".
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" && browser != "" {
			return browser + " on " + platform
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
