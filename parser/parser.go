// Package parser reads TXT01 requests: a five byte header followed by
// Forth-style lines where values are pushed on a stack and a command word
// consumes them.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header opens every request and response stream.
const Header = "TXT01"

// OptPrefix marks string values that are command options, e.g. "opt: terminal".
const OptPrefix = "opt: "

// ErrUnknownCommand is returned for bare words that are not commands.
var ErrUnknownCommand = errors.New("unknown command")

// Commands understood by the server.
const (
	CmdSearch  = "search"
	CmdList    = "list"
	CmdRun     = "run"
	CmdReindex = "reindex"
	CmdVersion = "version"
	CmdStatus  = "status"
	CmdIcon    = "icon"
)

var commands = map[string]bool{
	CmdSearch:  true,
	CmdList:    true,
	CmdRun:     true,
	CmdReindex: true,
	CmdVersion: true,
	CmdStatus:  true,
	CmdIcon:    true,
}

// ValueType represents the type of a value on the stack
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeBool
)

// Value represents a value on the stack
type Value struct {
	Type ValueType
	Str  string
	Int  int64
	Bool bool
}

// Command represents a parsed command
type Command struct {
	Name    string
	Args    []Value
	Options map[string]bool // "opt: x" values, removed from Args
}

// Strings returns the string arguments in order.
func (c *Command) Strings() []string {
	var out []string
	for _, a := range c.Args {
		if a.Type == TypeString {
			out = append(out, a.Str)
		}
	}
	return out
}

// Int returns the last integer argument.
func (c *Command) Int() (int64, bool) {
	for i := len(c.Args) - 1; i >= 0; i-- {
		if c.Args[i].Type == TypeInt {
			return c.Args[i].Int, true
		}
	}
	return 0, false
}

// Parser parses Forth-style commands
type Parser struct {
	reader  *bufio.Reader
	header  string
	version string
}

// NewParser reads the stream header and returns a parser for the commands
// that follow it.
func NewParser(reader io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(reader),
	}

	headerBytes := make([]byte, len(Header))
	if _, err := io.ReadFull(p.reader, headerBytes); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	p.header = string(headerBytes[:3])
	p.version = string(headerBytes[3:5])

	if p.header != "TXT" {
		return nil, fmt.Errorf("unsupported format: %s", p.header)
	}
	if p.version != "01" {
		return nil, fmt.Errorf("unsupported version: %s", p.version)
	}

	return p, nil
}

// ParseCommand parses the next command from input. Values left on the stack
// when the stream ends are discarded.
func (p *Parser) ParseCommand() (*Command, error) {
	cmd := &Command{}

	for {
		raw, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || raw == "") {
			return nil, err
		}
		line := strings.TrimRight(raw, "\r\n")

		// String values keep inner and trailing spaces
		if str, ok := strings.CutPrefix(strings.TrimLeft(line, " \t"), `"`); ok {
			if opt, isOpt := strings.CutPrefix(str, OptPrefix); isOpt {
				if cmd.Options == nil {
					cmd.Options = map[string]bool{}
				}
				cmd.Options[strings.TrimSpace(opt)] = true
			} else {
				cmd.Args = append(cmd.Args, Value{Type: TypeString, Str: str})
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}

		line = strings.TrimSpace(line)

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}

		if commands[line] {
			cmd.Name = line
			return cmd, nil
		}

		value, perr := parseValue(line)
		if perr != nil {
			return nil, perr
		}
		cmd.Args = append(cmd.Args, value)
		if err == io.EOF {
			return nil, io.EOF
		}
	}
}

func parseValue(line string) (Value, error) {
	switch line {
	case "t":
		return Value{Type: TypeBool, Bool: true}, nil
	case "f":
		return Value{Type: TypeBool, Bool: false}, nil
	}

	if intVal, err := strconv.ParseInt(line, 10, 64); err == nil {
		return Value{Type: TypeInt, Int: intVal}, nil
	}

	if isWord(line) {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownCommand, line)
	}
	return Value{}, fmt.Errorf("cannot parse value: %s", line)
}

func isWord(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '-' && r != '+' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// ReadAllCommands reads all commands from the parser
func (p *Parser) ReadAllCommands() ([]*Command, error) {
	var commands []*Command

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}
