// Package command parses the dev client's typed commands and maps them,
// through names and aliases, to game actions.
package command

import (
	"fmt"
	"sort"
	"strings"
)

// Actions a command resolves to.
const (
	ActionAttack = "attack"
	ActionHit    = "hit"
	ActionMiss   = "miss"
	ActionDefeat = "defeat"
	ActionHelp   = "help"
	ActionQuit   = "quit"
)

// Command describes one typed command.
type Command struct {
	Name    string
	Aliases []string
	// Args is the exact number of arguments required.
	Args   int
	Usage  string
	Help   string
	Action string
}

// BuiltinCommands returns the dev client's command set.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "attack", Aliases: []string{"a", "fire"}, Args: 1, Usage: "attack <vector>", Help: "Fire at a cell, e.g. attack G4.", Action: ActionAttack},
		{Name: "hit", Aliases: []string{"h"}, Usage: "hit", Help: "Report that the incoming attack hit.", Action: ActionHit},
		{Name: "miss", Aliases: []string{"m"}, Usage: "miss", Help: "Report that the incoming attack missed.", Action: ActionMiss},
		{Name: "defeat", Aliases: []string{"d", "sunk"}, Usage: "defeat", Help: "Report that your last ship sank.", Action: ActionDefeat},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "List commands.", Action: ActionHelp},
		{Name: "quit", Aliases: []string{"q", "exit"}, Usage: "quit", Help: "Leave the game.", Action: ActionQuit},
	}
}

// Input is a parsed line.
type Input struct {
	// Command is the first word, lowercased.
	Command string
	// Args are the remaining words.
	Args []string
}

// Parse splits a line into a command word and arguments.
//
// Postcondition: Command is empty for a blank line.
func Parse(line string) Input {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Input{}
	}
	in := Input{Command: strings.ToLower(fields[0])}
	if len(fields) > 1 {
		in.Args = fields[1:]
	}
	return in
}

// Registry maps command names and aliases to commands.
type Registry struct {
	commands map[string]*Command // canonical name → command
	aliases  map[string]string   // alias → canonical name
}

// NewRegistry creates a Registry populated with the given commands.
//
// Precondition: No two commands may share a canonical name or alias.
// Postcondition: Returns a Registry or an error on name/alias collisions.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{
		commands: make(map[string]*Command, len(cmds)),
		aliases:  make(map[string]string),
	}
	for i := range cmds {
		cmd := &cmds[i]
		if _, exists := r.commands[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command name: %q", cmd.Name)
		}
		if _, exists := r.aliases[cmd.Name]; exists {
			return nil, fmt.Errorf("command name %q conflicts with an existing alias", cmd.Name)
		}
		r.commands[cmd.Name] = cmd
	}
	for i := range cmds {
		cmd := &cmds[i]
		for _, alias := range cmd.Aliases {
			if _, exists := r.commands[alias]; exists {
				return nil, fmt.Errorf("alias %q of %q conflicts with a command name", alias, cmd.Name)
			}
			if existing, exists := r.aliases[alias]; exists {
				return nil, fmt.Errorf("duplicate alias %q: used by %q and %q", alias, existing, cmd.Name)
			}
			r.aliases[alias] = cmd.Name
		}
	}
	return r, nil
}

// DefaultRegistry creates a Registry with the built-in commands.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve looks up a command by name or alias.
func (r *Registry) Resolve(name string) (*Command, bool) {
	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	if canonical, ok := r.aliases[name]; ok {
		return r.commands[canonical], true
	}
	return nil, false
}

// Lookup parses line and resolves its command, checking the argument count.
// A blank line returns (nil, nil, nil).
func (r *Registry) Lookup(line string) (*Command, []string, error) {
	in := Parse(line)
	if in.Command == "" {
		return nil, nil, nil
	}
	cmd, ok := r.Resolve(in.Command)
	if !ok {
		return nil, nil, fmt.Errorf("unknown command %q", in.Command)
	}
	if len(in.Args) != cmd.Args {
		return nil, nil, fmt.Errorf("usage: %s", cmd.Usage)
	}
	return cmd, in.Args, nil
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
