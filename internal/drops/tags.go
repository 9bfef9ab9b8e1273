package drops

import (
	"regexp"
	"strings"
)

var hashtagRe = regexp.MustCompile(`#([a-zA-Z0-9_]{1,32})`)

// ExtractTag returns the first hashtag in content, lowercased, or "".
func ExtractTag(content string) string {
	m := hashtagRe.FindStringSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}
