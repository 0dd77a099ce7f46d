package engine

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// Detector examines an engine response to determine whether the provider
// denied the query rather than answering it.
type Detector func(statusCode int, header http.Header, body []byte) (denied bool, source string)

// DefaultDetectors returns the standard list of denial detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectStatusDenial,
		detectCloudflare,
		detectCaptchaPage,
	}
}

// classifyDenial runs the response through the detectors and returns a
// rate-limit error naming the detection source, or nil when the response
// looks like a genuine answer.
func classifyDenial(statusCode int, header http.Header, body []byte, detectors []Detector) error {
	for _, d := range detectors {
		if denied, source := d(statusCode, header, body); denied {
			return fmt.Errorf("%s: %w", source, ErrRateLimited)
		}
	}
	return nil
}

// detectStatusDenial treats the throttle status codes as denials
// regardless of body content.
func detectStatusDenial(statusCode int, _ http.Header, _ []byte) (bool, string) {
	switch statusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return true, fmt.Sprintf("status %d", statusCode)
	}
	return false, ""
}

// detectCloudflare looks for Cloudflare challenge/block signatures, which
// front both engines' image endpoints under load.
func detectCloudflare(statusCode int, header http.Header, body []byte) (bool, string) {
	if statusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		return true, "cloudflare challenge"
	}
	if bytes.Contains(body, []byte("cf-browser-verification")) ||
		bytes.Contains(body, []byte("cf-turnstile")) ||
		bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
		return true, "cloudflare challenge"
	}
	return false, ""
}

// detectCaptchaPage catches captcha interstitials served with a 200.
func detectCaptchaPage(statusCode int, _ http.Header, body []byte) (bool, string) {
	if statusCode != http.StatusOK {
		return false, ""
	}
	if bytes.Contains(body, []byte("anomaly-modal")) ||
		bytes.Contains(body, []byte("g-recaptcha")) ||
		bytes.Contains(body, []byte("captcha-delivery.com")) {
		return true, "captcha interstitial"
	}
	return false, ""
}
