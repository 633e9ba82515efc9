// Package subdomain implements the label grammar, host extraction, and
// random-label generation shared by the public HTTP router and the tunnel
// session handler.
package subdomain

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

var dashRun = regexp.MustCompile(`-+`)
var invalidChar = regexp.MustCompile(`[^a-z0-9-]+`)

var adjectives = []string{
	"brave", "calm", "eager", "fuzzy", "gentle", "happy", "jolly", "lively",
	"mighty", "nimble", "quiet", "swift",
}

var nouns = []string{
	"badger", "canyon", "comet", "falcon", "glacier", "harbor", "meadow",
	"otter", "pebble", "raven", "summit", "willow",
}

// Extract derives a subdomain label from host given rootDomain, per the
// host-based adapter (strip :port, require suffix "."+rootDomain, reject
// nested labels containing a dot). Returns "" if host is not a subdomain
// of rootDomain.
func Extract(host, rootDomain string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}

	suffix := "." + rootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}

	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// Sanitize normalizes input into a valid label: lowercase, non-grammar
// runs collapsed to a single dash, leading/trailing dashes trimmed,
// truncated to 63 bytes.
func Sanitize(input string) string {
	s := strings.ToLower(input)
	s = invalidChar.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 63 {
		s = s[:63]
	}
	return s
}

// Generate produces a fresh random label: adjective-noun-hex4.
func Generate() string {
	suffix := randomHex(2)
	adj := adjectives[randomIndex(len(adjectives))]
	noun := nouns[randomIndex(len(nouns))]
	return adj + "-" + noun + "-" + suffix
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func randomIndex(n int) int {
	b := make([]byte, 1)
	_, _ = rand.Read(b)
	return int(b[0]) % n
}
