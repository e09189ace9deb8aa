package grammar

import (
	"regexp"
	"strings"
)

// kvLinePattern splits a non-comment, non-section line into its indent,
// key, the whitespace before the separator, the separator itself (':' or
// '='), the whitespace after it, and the (possibly empty) value.
var kvLinePattern = regexp.MustCompile(`^([ \t]*)([A-Za-z0-9_]+)([ \t]*)([:=])([ \t]*)(.*)$`)

var sectionHeaderPattern = regexp.MustCompile(`^\s*\[[^\]]*\]\s*$`)

// isCommentLine reports whether line is a whole-line comment (# or ;).
func isCommentLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";")
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isSectionHeader(line string) bool {
	return sectionHeaderPattern.MatchString(line)
}

// parsedKV is a successfully parsed key/value line.
type parsedKV struct {
	indent string
	key    string
	pre    string
	sep    byte
	post   string
	value  string
}

func parseKVLine(line string) (parsedKV, bool) {
	m := kvLinePattern.FindStringSubmatch(line)
	if m == nil {
		return parsedKV{}, false
	}
	return parsedKV{
		indent: m[1],
		key:    m[2],
		pre:    m[3],
		sep:    m[4][0],
		post:   m[5],
		value:  m[6],
	}, true
}

func (p parsedKV) render() string {
	var b strings.Builder
	b.WriteString(p.indent)
	b.WriteString(p.key)
	b.WriteString(p.pre)
	b.WriteByte(p.sep)
	b.WriteString(p.post)
	b.WriteString(p.value)
	return b.String()
}

// countTripleQuotes returns how many times `"""` occurs in s (non-
// overlapping).
func countTripleQuotes(s string) int {
	return strings.Count(s, `"""`)
}
