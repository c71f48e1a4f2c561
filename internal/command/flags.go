package command

import (
	"html"
	"io"
	"strings"
	"unicode"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
)

// Mobile clients send typographic punctuation that breaks shell quoting.
var punctuation = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"´", "'", // acute accent
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
)

// Normalize URL-decodes and HTML-unescapes text and maps smart punctuation
// to ASCII. Malformed percent escapes are left as they are.
func Normalize(text string) string {
	text = unescapePercent(text)
	text = html.UnescapeString(text)
	return punctuation.Replace(text)
}

// unescapePercent decodes each valid %XX escape on its own, so one stray
// "%" does not keep the rest of the text encoded.
func unescapePercent(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// escapeComments backslash-escapes a "#" that starts an unquoted word.
// shlex would otherwise drop it and the rest of the line as a comment,
// turning "-e #angry" into a flag with no argument.
func escapeComments(s string) string {
	if !strings.Contains(s, "#") {
		return s
	}

	var b strings.Builder
	var quote rune
	escaped := false
	wordStart := true
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == quote {
				quote = 0
			} else if r == '\\' && quote == '"' {
				escaped = true
			}
		case r == '\\':
			escaped = true
		case r == '\'' || r == '"':
			quote = r
		case r == '#' && wordStart:
			b.WriteRune('\\')
		}
		b.WriteRune(r)
		wordStart = quote == 0 && !escaped && unicode.IsSpace(r)
	}
	return b.String()
}

// ParseFlags parses flag-style command text.
func ParseFlags(text string) (*Parsed, error) {
	fixed := Normalize(text)

	args, err := shlex.Split(escapeComments(fixed))
	if err != nil {
		return nil, malformed("quoting in %q: %v", fixed, err)
	}

	p := &Parsed{Style: StyleFlags}
	fs := pflag.NewFlagSet("char", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&p.Character, "character", "c", "", "character alias or name")
	fs.StringVarP(&p.Mode, "emotion", "e", "", "emotion or action")
	fs.BoolVarP(&p.Help, "how", "H", false, "show usage")
	fs.StringVarP(&p.Message, "message", "m", "", "what the character says")
	fs.StringVarP(&p.Roll, "roll", "r", "", "dice to roll")

	if err := fs.Parse(args); err != nil {
		return nil, malformed("%v", err)
	}
	if fs.NArg() > 0 {
		return nil, malformed("unrecognized arguments: %s", strings.Join(fs.Args(), " "))
	}
	if !p.Help && strings.TrimSpace(p.Character) == "" {
		return nil, malformed("a character is required (-c)")
	}

	return p, nil
}
