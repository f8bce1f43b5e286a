// Package partial extracts string fields from a JSON object that is still
// being streamed and is not yet valid JSON as a whole.
//
// The supervisor writes its final answer as one object whose "thoughts" and
// "response" values grow character by character; the UI needs the value so
// far long before the closing brace arrives.
package partial

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

var (
	patternMu sync.Mutex
	patterns  = make(map[string]*regexp.Regexp)
)

// fieldPattern matches `"name" : "` and captures everything up to (but not
// including) the first unescaped quote, or the end of the buffer if the
// closing quote has not arrived yet.
func fieldPattern(name string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patterns[name]; ok {
		return re
	}
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*"((?:[^"\\]|\\.)*)`)
	patterns[name] = re
	return re
}

// StringField returns the best-effort value of the named string field given
// the JSON text accumulated so far. The second return is false until the
// field's opening quote has been seen.
//
// The result is monotonic: for a growing buffer each successive value is
// equal to or an extension of the previous one, so callers can replace
// rather than append.
//
// Known limitation, inherited deliberately: the regex can latch onto the
// field name appearing inside another string value. The backend never nests
// these field names today.
func StringField(buf, name string) (string, bool) {
	m := fieldPattern(name).FindStringSubmatch(buf)
	if m == nil {
		return "", false
	}
	frag := m[1]

	var s string
	if err := json.Unmarshal([]byte(`"`+frag+`"`), &s); err == nil {
		return s, true
	}
	// The fragment ends mid-escape-sequence. Decode what is cleanly
	// decodable and drop the incomplete tail so the value never regresses
	// once the rest of the escape arrives.
	return decodeFragment(frag), true
}

// decodeFragment resolves JSON string escapes by hand, stopping at a
// truncated escape sequence instead of failing.
func decodeFragment(frag string) string {
	var b strings.Builder
	b.Grow(len(frag))
	for i := 0; i < len(frag); {
		c := frag[i]
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(frag) {
			break
		}
		switch frag[i+1] {
		case '"', '\\', '/':
			b.WriteByte(frag[i+1])
			i += 2
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 'b':
			b.WriteByte('\b')
			i += 2
		case 'f':
			b.WriteByte('\f')
			i += 2
		case 'u':
			if i+6 > len(frag) {
				return b.String()
			}
			var s string
			if err := json.Unmarshal([]byte(`"`+frag[i:i+6]+`"`), &s); err != nil {
				return b.String()
			}
			b.WriteString(s)
			i += 6
		default:
			// Not a JSON escape; keep the characters verbatim.
			b.WriteByte(c)
			b.WriteByte(frag[i+1])
			i += 2
		}
	}
	return b.String()
}

// Document is the supervisor's final-answer object.
type Document struct {
	Thoughts string `json:"thoughts"`
	Response string `json:"response"`
}

// ParseDocument attempts an authoritative whole-object parse of buf, used
// once the stream has completed and when replaying persisted history. It
// tolerates text surrounding the object by parsing from the first '{' to the
// last '}'.
func ParseDocument(buf string) (Document, bool) {
	start := strings.Index(buf, "{")
	end := strings.LastIndex(buf, "}")
	if start == -1 || end == -1 || end < start {
		return Document{}, false
	}
	var doc Document
	if err := json.Unmarshal([]byte(buf[start:end+1]), &doc); err != nil {
		return Document{}, false
	}
	return doc, true
}
