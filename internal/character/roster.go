package character

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ghabxph/dnd-relay/internal/command"
)

// AllUsers in an allow-list lets every Slack user invoke the command.
const AllUsers = "all"

// Command binds a slash command route to a parser style and, for player
// commands, to the character it speaks as.
type Command struct {
	Path         string        `yaml:"path"`
	Style        command.Style `yaml:"style"`
	Character    string        `yaml:"character,omitempty"`
	AllowedUsers []string      `yaml:"allowed_users,omitempty"`
}

// IsAllowed reports whether user may invoke the command. Only player
// commands carry an allow-list; the others accept anyone who passed request
// validation.
func (c Command) IsAllowed(user string) bool {
	if c.Style != command.StylePlayer {
		return true
	}
	for _, allowed := range c.AllowedUsers {
		if allowed == AllUsers || allowed == user {
			return true
		}
	}
	return false
}

// Roster is the deployment's characters and slash commands.
type Roster struct {
	Characters *Table
	Commands   []Command
}

type rosterFile struct {
	Characters map[string]Entry `yaml:"characters"`
	Commands   []Command        `yaml:"commands"`
}

// DefaultRoster is used when no roster file is configured.
func DefaultRoster() *Roster {
	return &Roster{
		Characters: NewTable(Entry{
			Alias:       "drizzt",
			DisplayName: "Drizzt Do'Urden",
			ImageURL:    "https://en.wikipedia.org/wiki/Drizzt_Do%27Urden#/media/File:Drizzt.png",
		}),
		Commands: []Command{
			{Path: "/char", Style: command.StyleFlags},
		},
	}
}

// LoadFile reads a YAML roster from path.
func LoadFile(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML roster.
func Parse(data []byte) (*Roster, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}

	entries := make([]Entry, 0, len(f.Characters))
	for alias, e := range f.Characters {
		e.Alias = alias
		entries = append(entries, e)
	}

	r := &Roster{
		Characters: NewTable(entries...),
		Commands:   f.Commands,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that every command has a unique route and a usable style.
func (r *Roster) Validate() error {
	if len(r.Commands) == 0 {
		return fmt.Errorf("roster defines no commands")
	}

	seen := make(map[string]bool, len(r.Commands))
	for i, c := range r.Commands {
		if !strings.HasPrefix(c.Path, "/") {
			return fmt.Errorf("command %d: path %q must start with /", i, c.Path)
		}
		if seen[c.Path] {
			return fmt.Errorf("command %d: duplicate path %s", i, c.Path)
		}
		seen[c.Path] = true

		switch c.Style {
		case command.StyleFlags, command.StyleGM:
		case command.StylePlayer:
			if c.Character == "" {
				return fmt.Errorf("command %s: player commands need a character", c.Path)
			}
			if len(c.AllowedUsers) == 0 {
				return fmt.Errorf("command %s: player commands need allowed_users", c.Path)
			}
		default:
			return fmt.Errorf("command %s: unknown style %q", c.Path, c.Style)
		}
	}
	return nil
}
