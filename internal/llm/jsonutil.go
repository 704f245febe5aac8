package llm

import (
	"regexp"
	"strings"
)

// fencedObject matches an object inside a ``` or ```json code fence.
var fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ExtractJSON returns the JSON object in a clustering reply, or "" when the
// reply holds none. Models wrap the object in a code fence or in prose and
// sprinkle // comments and trailing commas; both are removed, but only
// outside string values.
func ExtractJSON(reply string) string {
	if m := fencedObject.FindStringSubmatch(reply); m != nil {
		return tidyJSON(m[1])
	}
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return ""
	}
	return tidyJSON(reply[start : end+1])
}

// tidyJSON drops // comments and any comma that directly precedes a closing
// brace or bracket. A workstream titled "Auth, }" or a URL keeps its text.
func tidyJSON(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			sb.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch {
		case ch == '"':
			inString = true
		case ch == '/' && strings.HasPrefix(raw[i:], "//"):
			nl := strings.IndexByte(raw[i:], '\n')
			if nl < 0 {
				return sb.String()
			}
			i += nl
			ch = '\n'
		case ch == ',' && closesNext(raw[i+1:]):
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// closesNext reports whether rest, past whitespace and // comments, starts
// with } or ].
func closesNext(rest string) bool {
	for {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if !strings.HasPrefix(rest, "//") {
			break
		}
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return false
		}
		rest = rest[nl:]
	}
	return rest != "" && (rest[0] == '}' || rest[0] == ']')
}
