package boxfs

import (
	"regexp"
	"strings"

	"github.com/Joyfolk/boxfs/boxerr"
)

// Matcher tests whether a path matches a compiled "glob:" or "regex:"
// pattern.
type Matcher struct {
	re *regexp.Regexp
}

// CompileMatcher compiles pattern, which must be prefixed "glob:" or
// "regex:". Glob semantics: '?' matches any byte except '/'; '*' matches
// any run of non-'/' bytes; '**' matches any run including '/';
// '[...]'/'[!...]' are character classes; '{a,b,c}' is non-nesting
// alternation; '\' escapes the next character. Fails Invalid on an
// unterminated class or group, an explicit '/' inside '[...]', or an
// invalid range.
func CompileMatcher(pattern string) (*Matcher, error) {
	switch {
	case strings.HasPrefix(pattern, "glob:"):
		body, err := globBody([]rune(pattern[len("glob:"):]), pattern)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile("^" + body + "$")
		if err != nil {
			return nil, boxerr.Wrap(boxerr.Invalid, pattern, err)
		}
		return &Matcher{re: re}, nil
	case strings.HasPrefix(pattern, "regex:"):
		re, err := regexp.Compile("^(?:" + pattern[len("regex:"):] + ")$")
		if err != nil {
			return nil, boxerr.Wrap(boxerr.Invalid, pattern, err)
		}
		return &Matcher{re: re}, nil
	default:
		return nil, boxerr.Newf(boxerr.Invalid, pattern, "pattern must be prefixed glob: or regex:")
	}
}

// Match reports whether p matches the compiled pattern in full.
func (m *Matcher) Match(p string) bool {
	return m.re.MatchString(p)
}

// globBody translates one glob fragment (no "glob:" prefix, no anchors) into
// the body of a Go regexp. Recurses once per "{...}" alternative; brace
// groups do not nest.
func globBody(runes []rune, original string) (string, error) {
	var b strings.Builder
	n := len(runes)
	i := 0
	for i < n {
		c := runes[i]
		switch c {
		case '\\':
			i++
			if i >= n {
				return "", boxerr.Newf(boxerr.Invalid, original, "dangling escape at end of pattern")
			}
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
			i++

		case '*':
			if i+1 < n && runes[i+1] == '*' {
				b.WriteString("(?s:.*)")
				i += 2
			} else {
				b.WriteString("[^/]*")
				i++
			}

		case '?':
			b.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			negate := false
			if j < n && (runes[j] == '!' || runes[j] == '^') {
				negate = true
				j++
			}
			start := j
			for j < n && runes[j] != ']' {
				if runes[j] == '/' {
					return "", boxerr.Newf(boxerr.Invalid, original, "illegal '/' inside character class")
				}
				j++
			}
			if j >= n {
				return "", boxerr.Newf(boxerr.Invalid, original, "unterminated character class")
			}
			classBody := string(runes[start:j])
			if err := validateClassRanges(classBody, original); err != nil {
				return "", err
			}
			b.WriteString("[")
			if negate {
				b.WriteString("^")
			}
			b.WriteString(strings.ReplaceAll(classBody, `\`, `\\`))
			b.WriteString("]")
			i = j + 1

		case '{':
			j := i + 1
			for j < n && runes[j] != '}' {
				if runes[j] == '{' {
					return "", boxerr.Newf(boxerr.Invalid, original, "nested brace groups are not supported")
				}
				j++
			}
			if j >= n {
				return "", boxerr.Newf(boxerr.Invalid, original, "unterminated brace group")
			}
			alts := strings.Split(string(runes[i+1:j]), ",")
			b.WriteString("(?:")
			for k, alt := range alts {
				if k > 0 {
					b.WriteString("|")
				}
				sub, err := globBody([]rune(alt), original)
				if err != nil {
					return "", err
				}
				b.WriteString(sub)
			}
			b.WriteString(")")
			i = j + 1

		case '}':
			return "", boxerr.Newf(boxerr.Invalid, original, "unmatched '}'")
		case ']':
			return "", boxerr.Newf(boxerr.Invalid, original, "unmatched ']'")

		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String(), nil
}

// validateClassRanges fails Invalid on a reversed range like [z-a].
func validateClassRanges(body, original string) error {
	runes := []rune(body)
	for i := 1; i < len(runes)-1; i++ {
		if runes[i] == '-' {
			lo, hi := runes[i-1], runes[i+1]
			if lo > hi {
				return boxerr.Newf(boxerr.Invalid, original, "invalid character range %c-%c", lo, hi)
			}
		}
	}
	return nil
}
