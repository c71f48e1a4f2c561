package command

import (
	"strings"
)

// Delimiter separates the parts of a delimited command.
const Delimiter = "|"

// ParseDelimited parses "|" separated command text. With an empty character
// the game master forms apply: "character | message" and
// "character | mode | message". Otherwise the player form "mode | message"
// applies and the character is the one given.
func ParseDelimited(text, character string) (*Parsed, error) {
	segments := strings.Split(text, Delimiter)
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	p := &Parsed{Style: StyleGM}
	if character != "" {
		p.Style = StylePlayer
	}
	switch {
	case character != "" && len(segments) == 2:
		p.Character = character
		p.Mode = FormatMode(segments[0])
		p.Message = segments[1]
	case character == "" && len(segments) == 2:
		p.Character = segments[0]
		p.Message = segments[1]
	case character == "" && len(segments) == 3:
		p.Character = segments[0]
		p.Mode = FormatMode(segments[1])
		p.Message = segments[2]
	default:
		return nil, malformed("expected %s, got %d part(s)", shape(character), len(segments))
	}

	if p.Character == "" {
		return nil, malformed("character is empty")
	}
	if p.Message == "" {
		return nil, malformed("message is empty")
	}
	return p, nil
}

// FormatMode renders a delimited mode segment for the header line.
func FormatMode(mode string) string {
	if mode == "" {
		return ""
	}
	return " [" + mode + "]"
}

func shape(character string) string {
	if character != "" {
		return "\"mode | message\""
	}
	return "\"character | message\" or \"character | mode | message\""
}
