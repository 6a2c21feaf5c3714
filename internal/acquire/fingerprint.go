package acquire

import "net/http"

// Fingerprint is the set of request headers that identify a client.
type Fingerprint struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Referer        string
}

var (
	// LocalFingerprint resembles a desktop browser opening a podcast directory link.
	LocalFingerprint = Fingerprint{
		UserAgent:      "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:15.0) Gecko/20100101 Firefox/15.0.1",
		Accept:         "audio/mpeg,audio/*;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Referer:        "https://podcasts.apple.com/",
	}
	// RemoteFingerprint deliberately differs in browser, platform, locale, and referer.
	RemoteFingerprint = Fingerprint{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.10 Safari/605.1.1",
		Accept:         "audio/webm,audio/ogg,audio/*;q=0.9",
		AcceptLanguage: "en-GB,en;q=0.8",
		Referer:        "https://open.spotify.com/",
	}
)

// WithUserAgent returns a copy with the user agent replaced when ua is set.
func (f Fingerprint) WithUserAgent(ua string) Fingerprint {
	if ua != "" {
		f.UserAgent = ua
	}
	return f
}

// Apply sets the fingerprint headers on req.
func (f Fingerprint) Apply(req *http.Request) {
	set := func(key, value string) {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	set("User-Agent", f.UserAgent)
	set("Accept", f.Accept)
	set("Accept-Language", f.AcceptLanguage)
	set("Referer", f.Referer)
}
