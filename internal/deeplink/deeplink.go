// Package deeplink formats and parses the gust:// re-entry URIs carried
// in notification payloads. The main process resolves a destination on
// tap; the core only needs the vocabulary to be stable.
package deeplink

import (
	"fmt"
	"net/url"
)

// Scheme is the URI scheme the main application registers.
const Scheme = "gust"

// Destination identifies a screen the main process can open.
type Destination string

const (
	Home         Destination = "home"
	ShieldReview Destination = "shield"
	DaySummary   Destination = "summary"
	Pet          Destination = "pet"
)

// URI renders a destination as a deep-link URI, e.g. "gust://pet".
func URI(d Destination) string {
	return fmt.Sprintf("%s://%s", Scheme, d)
}

// Parse resolves a raw URI to a destination.
func Parse(raw string) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid deep link %q: %w", raw, err)
	}
	if u.Scheme != Scheme {
		return "", fmt.Errorf("invalid deep link scheme %q (want %s)", u.Scheme, Scheme)
	}

	switch d := Destination(u.Host); d {
	case Home, ShieldReview, DaySummary, Pet:
		return d, nil
	default:
		return "", fmt.Errorf("unknown deep link destination %q", u.Host)
	}
}
