// Package server exposes the engine over a Unix socket speaking TXT01.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/engine"
	"github.com/0xADE/ade-launchd/internal/launcher"
	"github.com/0xADE/ade-launchd/internal/matcher"
	"github.com/0xADE/ade-launchd/parser"
)

// Backend is the engine API the server needs.
type Backend interface {
	Search(query string, limit int) []matcher.Result
	Rebuild(ctx context.Context) (*catalog.View, error)
	Launch(ctx context.Context, id string, opts launcher.Options) (launcher.Handle, error)
	IndexVersion() uint64
	Icon(id string) ([]byte, bool)
	Status() engine.Status
}

// Server handles Unix socket connections and command execution
type Server struct {
	listener net.Listener
	path     string
	backend  Backend
	log      zerolog.Logger
	running  bool
	mu       sync.RWMutex
}

// NewServer listens on socketPath, replacing a stale socket file.
func NewServer(backend Backend, socketPath string, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, err
	}

	// Remove existing socket if it exists
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		path:     socketPath,
		backend:  backend,
		log:      log.With().Str("component", "server").Logger(),
	}, nil
}

// Start accepts connections until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = s.Stop()
	})
	defer stop()

	s.log.Info().Str("socket", s.path).Msg("listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	s.log.Debug().Msg("connection accepted")

	p, err := parser.NewParser(conn)
	if err != nil {
		s.log.Debug().Err(err).Msg("bad header")
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	for {
		cmd, err := p.ParseCommand()
		if errors.Is(err, io.EOF) {
			s.log.Debug().Msg("connection closed by client")
			return
		}
		if err != nil {
			if errors.Is(err, parser.ErrUnknownCommand) {
				s.writeError(conn, "parser", "unknown command", err.Error())
				continue
			}
			var netErr net.Error
			if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) {
				return
			}
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}

		s.log.Debug().Str("cmd", cmd.Name).Int("args", len(cmd.Args)).Msg("executing command")
		s.executeCommand(ctx, conn, cmd)
	}
}

func (s *Server) executeCommand(ctx context.Context, w io.Writer, cmd *parser.Command) {
	switch cmd.Name {
	case parser.CmdSearch:
		s.handleSearch(w, cmd)
	case parser.CmdList:
		s.handleList(w, cmd)
	case parser.CmdRun:
		s.handleRun(ctx, w, cmd)
	case parser.CmdReindex:
		s.handleReindex(ctx, w)
	case parser.CmdVersion:
		s.handleVersion(w)
	case parser.CmdStatus:
		s.handleStatus(w)
	case parser.CmdIcon:
		s.handleIcon(w, cmd)
	default:
		s.writeError(w, cmd.Name, "unknown command", "Command not recognized")
	}
}

func (s *Server) handleSearch(w io.Writer, cmd *parser.Command) {
	query := strings.Join(cmd.Strings(), " ")
	limit, _ := cmd.Int()
	if limit < 0 {
		s.writeError(w, parser.CmdSearch, "invalid argument", "limit must not be negative")
		return
	}
	s.writeResults(w, parser.CmdSearch, s.backend.Search(query, int(limit)))
}

func (s *Server) handleList(w io.Writer, cmd *parser.Command) {
	limit, _ := cmd.Int()
	if limit < 0 {
		s.writeError(w, parser.CmdList, "invalid argument", "limit must not be negative")
		return
	}
	s.writeResults(w, parser.CmdList, s.backend.Search("", int(limit)))
}

func (s *Server) writeResults(w io.Writer, name string, results []matcher.Result) {
	r := newResponse(name)
	r.set("version", s.backend.IndexVersion())
	r.set("list-len", len(results))
	for _, res := range results {
		r.line(FormatResult(res))
	}
	s.writeResponse(w, r)
}

func (s *Server) handleRun(ctx context.Context, w io.Writer, cmd *parser.Command) {
	ids := cmd.Strings()
	if len(ids) == 0 {
		s.writeError(w, parser.CmdRun, "missing id", "run command requires an id parameter")
		return
	}

	h, err := s.backend.Launch(ctx, ids[0], launcher.Options{Terminal: cmd.Options["terminal"]})
	switch {
	case errors.Is(err, launcher.ErrNotFound):
		s.writeError(w, parser.CmdRun, "not found", "Can't run application, requested id not found.")
		return
	case err != nil:
		s.writeError(w, parser.CmdRun, "launch failed", err.Error())
		return
	}

	r := newResponse(parser.CmdRun)
	r.set("id", h.ID)
	r.set("pid", h.PID)
	r.set("launches", h.Stats.LaunchCount)
	s.writeResponse(w, r)
}

func (s *Server) handleReindex(ctx context.Context, w io.Writer) {
	view, err := s.backend.Rebuild(ctx)
	if err != nil {
		s.writeError(w, parser.CmdReindex, "reindex failed", err.Error())
		return
	}
	r := newResponse(parser.CmdReindex)
	r.set("version", view.Snapshot.Version())
	r.set("indexed", view.Snapshot.Len())
	s.writeResponse(w, r)
}

func (s *Server) handleVersion(w io.Writer) {
	r := newResponse(parser.CmdVersion)
	r.set("version", s.backend.IndexVersion())
	s.writeResponse(w, r)
}

func (s *Server) handleStatus(w io.Writer) {
	st := s.backend.Status()
	r := newResponse(parser.CmdStatus)
	r.set("version", st.Version)
	r.set("entries", st.Entries)
	r.set("sources", st.Sources)
	r.set("failed", len(st.Failed))
	r.set("rebuilding", boolWord(st.Rebuilding))
	r.set("rebuilds", st.Rebuilds)
	r.set("usage-keys", st.UsageKeys)
	if !st.FinishedAt.IsZero() {
		r.set("finished", st.FinishedAt.UTC().Format(time.RFC3339))
		r.set("took", st.Took.Round(time.Millisecond))
	}
	if st.Err != nil {
		r.set("last-error", oneLine(st.Err.Error()))
	}
	for _, name := range st.Failed {
		r.line(name)
	}
	s.writeResponse(w, r)
}

func (s *Server) handleIcon(w io.Writer, cmd *parser.Command) {
	ids := cmd.Strings()
	if len(ids) == 0 {
		s.writeError(w, parser.CmdIcon, "missing id", "icon command requires an id parameter")
		return
	}
	data, ok := s.backend.Icon(ids[0])
	if !ok {
		s.writeError(w, parser.CmdIcon, "not found", "requested id not found")
		return
	}
	if len(data) == 0 {
		s.writeError(w, parser.CmdIcon, "no icon", "entry has no icon and no fallback is configured")
		return
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	r := newResponse(parser.CmdIcon)
	r.set("id", ids[0])
	r.set("size", len(data))
	r.set("encoding", "base64")
	for len(encoded) > iconLineLen {
		r.line(encoded[:iconLineLen])
		encoded = encoded[iconLineLen:]
	}
	r.line(encoded)
	s.writeResponse(w, r)
}

const iconLineLen = 76

// FormatResult renders one search result as a body line:
// id, score, spans and display name separated by tabs.
func FormatResult(res matcher.Result) string {
	spans := "-"
	if len(res.Spans) > 0 {
		parts := make([]string, 0, len(res.Spans))
		for _, sp := range res.Spans {
			parts = append(parts, fmt.Sprintf("%d:%d+%d", sp.Field, sp.Start, sp.Len))
		}
		spans = strings.Join(parts, ",")
	}
	return strings.Join([]string{
		res.ID,
		strconv.FormatFloat(res.Score, 'f', 2, 64),
		spans,
		oneLine(res.DisplayName),
	}, "\t")
}

type response struct {
	attrs strings.Builder
	body  []string
}

func newResponse(cmd string) *response {
	r := &response{}
	r.set("cmd", cmd)
	r.set("status", 0)
	return r
}

func (r *response) set(key string, value any) {
	fmt.Fprintf(&r.attrs, "%s: %v\n", key, value)
}

// line appends a body line. Empty lines would be read as the terminator
// and are dropped.
func (r *response) line(l string) {
	if l != "" {
		r.body = append(r.body, l)
	}
}

func (r *response) String() string {
	var b strings.Builder
	b.WriteString(parser.Header)
	b.WriteString(r.attrs.String())
	if len(r.body) > 0 {
		b.WriteString("body:\n")
		for _, l := range r.body {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	b.WriteString("\n\n")
	return b.String()
}

// writeResponse writes a response with TXT01 header
func (s *Server) writeResponse(w io.Writer, r *response) {
	out := r.String()
	if _, err := io.WriteString(w, out); err != nil {
		s.log.Debug().Err(err).Msg("write response failed")
		return
	}
	s.log.Debug().Int("bytes", len(out)).Msg("response written")
}

func (s *Server) writeError(w io.Writer, cmd, errType, desc string) {
	s.log.Debug().Str("cmd", cmd).Str("error", errType).Str("desc", desc).Msg("writing error response")
	r := &response{}
	r.set("error-cmd", cmd)
	r.set("error", errType)
	r.set("desc", oneLine(desc))
	s.writeResponse(w, r)
}

func boolWord(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s)
}
