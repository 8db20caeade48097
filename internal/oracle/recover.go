package oracle

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
)

// jsonParser pulls a candidate JSON payload out of model text.
type jsonParser struct {
	name  string
	parse func(text string) []string
}

// jsonParsers are tried in order; each may offer several candidates.
var jsonParsers = []jsonParser{
	{"direct", parseDirect},
	{"fenced", parseFenced},
	{"span", parseBalancedSpans},
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

func parseDirect(text string) []string {
	return []string{strings.TrimSpace(text)}
}

func parseFenced(text string) []string {
	var out []string
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// maxSpans bounds how many opening brackets are tried.
const maxSpans = 8

// parseBalancedSpans returns balanced {...} or [...] spans, earliest first,
// skipping brackets inside JSON strings.
func parseBalancedSpans(text string) []string {
	var out []string
	for start := 0; start < len(text) && len(out) < maxSpans; start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		if end := matchBracket(text, start); end > start {
			out = append(out, text[start:end+1])
		}
	}
	return out
}

func matchBracket(text string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// RecoverJSON decodes the first candidate any parser finds that unmarshals
// into v, which must be a non-nil pointer. v is left untouched unless a
// candidate decodes completely. It returns the winning parser's name, or
// ErrNoJSON.
func RecoverJSON(text string, v interface{}) (string, error) {
	target := reflect.ValueOf(v)
	if target.Kind() != reflect.Ptr || target.IsNil() {
		return "", ErrNoJSON
	}
	for _, p := range jsonParsers {
		for _, candidate := range p.parse(text) {
			if candidate == "" || !json.Valid([]byte(candidate)) {
				continue
			}
			fresh := reflect.New(target.Elem().Type())
			if err := json.Unmarshal([]byte(candidate), fresh.Interface()); err == nil {
				target.Elem().Set(fresh.Elem())
				return p.name, nil
			}
		}
	}
	return "", ErrNoJSON
}
