// Package command turns the text of a slash command into a Parsed request.
//
// Two syntaxes are supported. Flag style reads shell-quoted options:
//
//	/char -c drizzt -e "draws his scimitars" -m "Stand aside." -r 1d20+7
//
// Delimited style splits on "|": "character | message" or
// "character | mode | message" for game masters, "mode | message" for
// player commands where the character is fixed by the route.
package command

import (
	"errors"
	"fmt"
)

// Style selects how a slash command's text is parsed.
type Style string

const (
	StyleFlags  Style = "flags"
	StyleGM     Style = "gm"
	StylePlayer Style = "player"
)

// ErrMalformed is wrapped by every parse failure.
var ErrMalformed = errors.New("malformed command")

// Usage is sent back when a flag-style command asks for help.
const Usage = "/char -c [character name]\n" +
	"If you'd like to add an emotion or action: -e '[emotion|action]'\n" +
	"If you'd like to show what the character says: -m \"[text]\"\n" +
	"If you want to roll dice as well: -r \"[roll]\"\n"

// Parsed is one request's worth of command input.
type Parsed struct {
	// Style is the syntax the text was written in.
	Style     Style
	Character string
	// Mode is rendered verbatim after the "..." in the header line.
	Mode    string
	Message string
	// Roll is a dice expression; empty means no roll was requested.
	Roll string
	Help bool
}

// HasRoll reports whether a dice roll was requested.
func (p *Parsed) HasRoll() bool {
	return p.Roll != ""
}

// Parse dispatches text to the parser for style. character is the fixed
// speaker of a player command and is ignored by the other styles.
func Parse(style Style, text, character string) (*Parsed, error) {
	switch style {
	case StyleFlags:
		return ParseFlags(text)
	case StyleGM:
		return ParseDelimited(text, "")
	case StylePlayer:
		if character == "" {
			return nil, fmt.Errorf("%w: player command has no character", ErrMalformed)
		}
		return ParseDelimited(text, character)
	default:
		return nil, fmt.Errorf("%w: unknown style %q", ErrMalformed, style)
	}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
