package search

import (
	"net/url"
	"strings"
)

var linkWhitespace = strings.NewReplacer(" ", "", "\t", "", "\n", "")

// ParseChannelLinks extracts channel usernames from a pasted block of
// t.me-style links. Whitespace is stripped first, then the text is cut at
// every "http" occurrence and each fragment keeps only the part after its
// last slash. Text without a single "http" yields an empty result.
func ParseChannelLinks(raw string) []string {
	stripped := linkWhitespace.Replace(raw)

	var starts []int
	for offset := 0; ; {
		i := strings.Index(stripped[offset:], "http")
		if i < 0 {
			break
		}
		starts = append(starts, offset+i)
		offset += i + len("http")
	}

	usernames := make([]string, 0, len(starts))
	for n, start := range starts {
		end := len(stripped)
		if n+1 < len(starts) {
			end = starts[n+1]
		}
		link := stripped[start:end]
		if slash := strings.LastIndex(link, "/"); slash >= 0 {
			link = link[slash+1:]
		}
		usernames = append(usernames, link)
	}
	return usernames
}

// looksLikeLink reports whether text parses as an absolute HTTP or HTTPS URI.
// It gates entry into link parsing; the parser itself is more permissive.
func looksLikeLink(text string) bool {
	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
