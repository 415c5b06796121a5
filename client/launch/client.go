// Package launch is a client for the ade-launchd control socket.
package launch

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

const protoVer = "TXT01" // cmdlist protocol, text format, v01

// ErrServer is wrapped by every error the daemon reports.
var ErrServer = errors.New("server error")

// ServerError is an error response from the daemon.
type ServerError struct {
	Cmd  string
	Kind string // e.g. "not found", "launch failed"
	Desc string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s: %s: %s", e.Cmd, e.Kind, e.Desc)
}

func (e *ServerError) Unwrap() error {
	return ErrServer
}

// Span is a matched range in a result field. Field 0 is the display name,
// field n the n-th alias.
type Span struct {
	Field int
	Start int
	Len   int
}

// Result is one ranked search result.
type Result struct {
	ID    string
	Score float64
	Spans []Span
	Name  string
}

// Response is a raw daemon response.
type Response struct {
	Attrs map[string]string
	Body  []string
}

// Launched describes a started process.
type Launched struct {
	ID       string
	PID      int
	Launches uint64
}

// Client handles connection to ade-launchd server
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewClient connects to the daemon socket from the environment.
func NewClient() (*Client, error) {
	socketPath, err := SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}
	return Dial(socketPath)
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}
	c, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// New speaks the protocol over an established connection.
func New(conn net.Conn) (*Client, error) {
	if _, err := conn.Write([]byte(protoVer)); err != nil {
		return nil, fmt.Errorf("failed to send header: %w", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// FormatArgument formats an argument according to its type
func FormatArgument(arg string) string {
	arg = strings.TrimSpace(arg)

	// If starts with ", it's a string (keep prefix)
	if strings.HasPrefix(arg, `"`) {
		return arg
	}

	// Check for boolean literals
	if arg == "t" || arg == "f" {
		return arg
	}

	// Check if it's numeric (all digits)
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return arg
	}

	// Default: treat as string (add prefix)
	return `"` + arg
}

// Do sends a raw command with loosely typed arguments and returns the
// response. Error responses are returned as *ServerError.
func (c *Client) Do(cmdName string, args []string) (*Response, error) {
	lines := make([]string, 0, len(args)+1)
	for _, arg := range args {
		lines = append(lines, FormatArgument(arg))
	}
	return c.roundTrip(append(lines, cmdName))
}

// Search ranks entries against query. A zero limit means the daemon default.
func (c *Client) Search(query string, limit int) ([]Result, error) {
	lines := []string{`"` + oneLine(query)}
	if limit > 0 {
		lines = append(lines, strconv.Itoa(limit))
	}
	resp, err := c.roundTrip(append(lines, "search"))
	if err != nil {
		return nil, err
	}
	return parseResults(resp.Body)
}

// List returns entries ordered by usage.
func (c *Client) List(limit int) ([]Result, error) {
	var lines []string
	if limit > 0 {
		lines = append(lines, strconv.Itoa(limit))
	}
	resp, err := c.roundTrip(append(lines, "list"))
	if err != nil {
		return nil, err
	}
	return parseResults(resp.Body)
}

// Run starts an entry by id.
func (c *Client) Run(id string) (Launched, error) {
	return c.run(id, false)
}

// RunInTerminal starts an entry by id inside a terminal.
func (c *Client) RunInTerminal(id string) (Launched, error) {
	return c.run(id, true)
}

func (c *Client) run(id string, terminal bool) (Launched, error) {
	var lines []string
	if terminal {
		lines = append(lines, `"opt: terminal`)
	}
	resp, err := c.roundTrip(append(lines, `"`+oneLine(id), "run"))
	if err != nil {
		return Launched{}, err
	}
	pid, _ := strconv.Atoi(resp.Attrs["pid"])
	launches, _ := strconv.ParseUint(resp.Attrs["launches"], 10, 64)
	return Launched{ID: resp.Attrs["id"], PID: pid, Launches: launches}, nil
}

// Reindex rebuilds the index and returns the new version and entry count.
func (c *Client) Reindex() (uint64, int, error) {
	resp, err := c.roundTrip([]string{"reindex"})
	if err != nil {
		return 0, 0, err
	}
	version, _ := strconv.ParseUint(resp.Attrs["version"], 10, 64)
	indexed, _ := strconv.Atoi(resp.Attrs["indexed"])
	return version, indexed, nil
}

// Version returns the published index version.
func (c *Client) Version() (uint64, error) {
	resp, err := c.roundTrip([]string{"version"})
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(resp.Attrs["version"], 10, 64)
}

// Status returns the daemon status attributes. The body lists failed sources.
func (c *Client) Status() (*Response, error) {
	return c.roundTrip([]string{"status"})
}

// Icon returns the icon bytes of an entry.
func (c *Client) Icon(id string) ([]byte, error) {
	resp, err := c.roundTrip([]string{`"` + oneLine(id), "icon"})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.Join(resp.Body, ""))
	if err != nil {
		return nil, fmt.Errorf("decode icon: %w", err)
	}
	return data, nil
}

func (c *Client) roundTrip(lines []string) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.conn, strings.Join(lines, "\n")+"\n"); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	resp, err := ReadResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if kind, ok := resp.Attrs["error"]; ok {
		return nil, &ServerError{Cmd: resp.Attrs["error-cmd"], Kind: kind, Desc: resp.Attrs["desc"]}
	}
	return resp, nil
}

// ReadResponse reads one response: the header, attribute lines, an optional
// body and the terminating blank line pair.
func ReadResponse(reader *bufio.Reader) (*Response, error) {
	header := make([]byte, len(protoVer))
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, fmt.Errorf("failed to read response header: %w", err)
	}
	if string(header) != protoVer {
		return nil, fmt.Errorf("unexpected response header %q", header)
	}

	resp := &Response{Attrs: make(map[string]string)}
	seenBodyHeader := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}

		// Check for end of response marker (\n\n)
		if line == "\n" {
			if isEndOfResponse(reader) {
				return resp, nil
			}
			continue
		}

		line = strings.TrimRight(line, "\n")
		if !seenBodyHeader && line == "body:" {
			seenBodyHeader = true
			continue
		}

		if seenBodyHeader {
			resp.Body = append(resp.Body, line)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if ok {
			resp.Attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
}

// isEndOfResponse checks if we've reached the end of response marker (\n\n)
func isEndOfResponse(reader *bufio.Reader) bool {
	peek, peekErr := reader.Peek(1)
	if peekErr == nil && len(peek) > 0 && peek[0] == '\n' {
		// Skip the second \n
		reader.ReadByte()
		return true
	}
	return false
}

// ParseResult parses one search body line.
func ParseResult(line string) (Result, error) {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) != 4 {
		return Result{}, fmt.Errorf("malformed result line %q", line)
	}
	score, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Result{}, fmt.Errorf("malformed score in %q: %w", line, err)
	}
	res := Result{ID: parts[0], Score: score, Name: parts[3]}
	if parts[2] == "-" {
		return res, nil
	}
	for _, s := range strings.Split(parts[2], ",") {
		var sp Span
		if _, err := fmt.Sscanf(s, "%d:%d+%d", &sp.Field, &sp.Start, &sp.Len); err != nil {
			return Result{}, fmt.Errorf("malformed span %q: %w", s, err)
		}
		res.Spans = append(res.Spans, sp)
	}
	return res, nil
}

func parseResults(body []string) ([]Result, error) {
	results := make([]Result, 0, len(body))
	for _, line := range body {
		res, err := ParseResult(line)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
