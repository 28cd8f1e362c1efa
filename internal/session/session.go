// Package session implements the per-connection protocol state machine.
//
// A Session owns one accepted connection and walks it through the
// three-state conversation:
//
//	AWAIT_GREETING -> CONVERSING -> TERMINATING
//
// The session announces itself, then answers one line per client line
// until the client says goodbye, goes quiet past the idle timeout, or
// the transport fails. Every exit path ends with a best-effort farewell
// carrying the elapsed conversation time in milliseconds.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/graphline/internal/graph"
	"github.com/roach88/graphline/internal/protocol"
)

// DefaultIdleTimeout is how long a session waits for input before
// terminating the conversation.
const DefaultIdleTimeout = 30 * time.Second

// state is the FSM position.
type state int

const (
	stateAwaitGreeting state = iota
	stateConversing
	stateTerminating
)

// Clock supplies the session's notion of time. The elapsed-ms figure in
// the farewell is the difference of two Now calls, so a manual clock
// makes transcripts deterministic in tests. The production clock is
// time.Now, whose monotonic reading makes the difference immune to wall
// clock adjustments.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Recorder observes session lifecycle and accepted command lines.
// Implementations must not block the session for long; recording
// failures are logged and swallowed.
type Recorder interface {
	SessionOpened(sessionID string, at time.Time) error
	SessionClosed(sessionID, clientID string, elapsed time.Duration) error
	CommandHandled(sessionID string, seq int64, line, reply string) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) SessionOpened(string, time.Time) error              { return nil }
func (NopRecorder) SessionClosed(string, string, time.Duration) error  { return nil }
func (NopRecorder) CommandHandled(string, int64, string, string) error { return nil }

// Metrics receives session-level counters. The server wires a
// Prometheus-backed implementation; tests use NopMetrics.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	CommandObserved(verb string, failed bool)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SessionOpened()               {}
func (NopMetrics) SessionClosed()               {}
func (NopMetrics) CommandObserved(string, bool) {}

// Config carries the session collaborators. Zero-value fields are
// replaced with production defaults by New.
type Config struct {
	IdleTimeout time.Duration

	// NewID overrides session ID minting. Tests inject fixed IDs to
	// pin the greeting; nil means newSessionID.
	NewID func() string

	Clock    Clock
	Logger   *slog.Logger
	Recorder Recorder
	Metrics  Metrics
}

// newSessionID mints the identifier the server announces in its
// greeting. V7 IDs carry a timestamp prefix, so sorting log or audit
// entries by session ID orders them by open time. The hyphenated
// encoding is the same uuid shape the greeting grammar accepts, so a
// client may echo a server ID back as its own.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 fails only when the monotonic entropy source does.
		id = uuid.New()
	}
	return id.String()
}

// Session is one client conversation over one connection.
//
// Thread-safety: a Session is driven by a single goroutine calling Run.
// None of its methods are safe for concurrent use.
type Session struct {
	conn   net.Conn
	engine *graph.Engine
	cfg    Config
	log    *slog.Logger

	id       string
	clientID string
	state    state
	seq      int64

	reader *bufio.Reader
	writer *bufio.Writer
}

// New prepares a session for an accepted connection. The engine is the
// process-wide shared graph.
func New(conn net.Conn, engine *graph.Engine, cfg Config) *Session {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = newSessionID
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}

	id := cfg.NewID()
	return &Session{
		conn:   conn,
		engine: engine,
		cfg:    cfg,
		log:    cfg.Logger.With("session_id", id),
		id:     id,
		state:  stateAwaitGreeting,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// ID returns the server-generated session identifier.
func (s *Session) ID() string { return s.id }

// Run drives the conversation until the session terminates. It always
// closes the connection before returning.
func (s *Session) Run() {
	start := s.cfg.Clock.Now()
	s.cfg.Metrics.SessionOpened()
	if err := s.cfg.Recorder.SessionOpened(s.id, start); err != nil {
		s.log.Warn("audit record failed", "error", err)
	}
	s.log.Info("session active")

	defer func() {
		elapsed := s.cfg.Clock.Now().Sub(start)
		s.farewell(elapsed)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("close failed", "error", err)
		}
		s.cfg.Metrics.SessionClosed()
		if err := s.cfg.Recorder.SessionClosed(s.id, s.clientID, elapsed); err != nil {
			s.log.Warn("audit record failed", "error", err)
		}
		s.log.Info("session finished",
			"client_id", s.clientID,
			"elapsed_ms", elapsed.Milliseconds())
	}()

	if err := s.reply(fmt.Sprintf(protocol.MsgGreeting, s.id)); err != nil {
		s.log.Error("greeting write failed", "error", err)
		return
	}

	for s.state != stateTerminating {
		line, err := s.readLine()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				s.log.Warn("session finished due to idle timeout")
			case errors.Is(err, io.EOF):
				s.log.Info("client closed connection")
			case errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded):
				s.log.Warn("session read aborted", "error", err)
			default:
				s.log.Error("session read failed", "error", err)
			}
			s.state = stateTerminating
			break
		}

		reply, terminate := s.handleLine(line)
		if terminate {
			s.state = stateTerminating
			break
		}
		s.seq++
		if err := s.cfg.Recorder.CommandHandled(s.id, s.seq, line, reply); err != nil {
			s.log.Warn("audit record failed", "error", err)
		}
		if err := s.reply(reply); err != nil {
			s.log.Error("session write failed", "error", err)
			s.state = stateTerminating
			break
		}
	}
}

// readLine blocks for the next client line, bounded by the idle timeout
// measured from this read's start. The trailing LF (and an optional
// preceding CR) are stripped.
func (s *Session) readLine() (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
		return "", err
	}
	raw, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line := strings.TrimSuffix(raw, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// handleLine advances the FSM by one input line and returns the reply to
// send. terminate is true when the line ends the conversation, in which
// case no ordinary reply is sent and the deferred farewell takes over.
func (s *Session) handleLine(line string) (reply string, terminate bool) {
	cmd, ok := protocol.Parse(line)
	if !ok {
		s.log.Warn("unrecognized message", "line", line)
		s.cfg.Metrics.CommandObserved("unknown", true)
		return protocol.MsgSorry, false
	}

	switch s.state {
	case stateAwaitGreeting:
		switch cmd.Kind {
		case protocol.KindGreeting:
			s.clientID = cmd.ClientID
			s.log = s.log.With("client_id", s.clientID)
			s.log.Info("greeting received")
			s.cfg.Metrics.CommandObserved(cmd.Kind.Verb(), false)
			return fmt.Sprintf(protocol.MsgGreetingReply, s.clientID), false
		case protocol.KindFarewell:
			s.cfg.Metrics.CommandObserved(cmd.Kind.Verb(), false)
			return "", true
		default:
			// Graph commands are not accepted before the handshake.
			s.log.Warn("command before greeting", "line", line)
			s.cfg.Metrics.CommandObserved(cmd.Kind.Verb(), true)
			return protocol.MsgSorry, false
		}
	case stateConversing:
		if cmd.Kind == protocol.KindFarewell {
			s.cfg.Metrics.CommandObserved(cmd.Kind.Verb(), false)
			return "", true
		}
		return s.dispatch(cmd, line)
	default:
		return protocol.MsgSorry, false
	}
}

// dispatch executes a graph command against the shared engine and maps
// the engine result onto the wire catalog.
func (s *Session) dispatch(cmd protocol.Command, line string) (string, bool) {
	var reply string
	var failed bool

	switch cmd.Kind {
	case protocol.KindAddNode:
		if s.engine.AddNode(cmd.Name) {
			reply = protocol.MsgNodeAdded
		} else {
			reply, failed = protocol.MsgNodeExists, true
		}
	case protocol.KindAddEdge:
		if s.engine.AddEdge(cmd.From, cmd.To, cmd.Weight) {
			reply = protocol.MsgEdgeAdded
		} else {
			reply, failed = protocol.MsgNodeNotFound, true
		}
	case protocol.KindRemoveNode:
		if s.engine.RemoveNode(cmd.Name) {
			reply = protocol.MsgNodeRemoved
		} else {
			reply, failed = protocol.MsgNodeNotFound, true
		}
	case protocol.KindRemoveEdge:
		if s.engine.RemoveEdge(cmd.From, cmd.To) {
			reply = protocol.MsgEdgeRemoved
		} else {
			reply, failed = protocol.MsgNodeNotFound, true
		}
	case protocol.KindShortestPath:
		dist := s.engine.ShortestPath(cmd.From, cmd.To)
		if dist == graph.MissingEndpoint {
			reply, failed = protocol.MsgNodeNotFound, true
		} else {
			reply = strconv.Itoa(dist)
		}
	case protocol.KindCloserThan:
		closer := s.engine.CloserThan(cmd.Weight, cmd.Name)
		if closer == nil {
			reply, failed = protocol.MsgNodeNotFound, true
		} else {
			reply = strings.Join(closer, ",")
		}
	case protocol.KindGreeting:
		// The handshake already happened; a second greeting is noise.
		s.log.Warn("unexpected repeat greeting", "line", line)
		reply, failed = protocol.MsgSorry, true
	}

	if failed {
		s.log.Warn("command refused", "line", line, "reply", reply)
	} else {
		s.log.Debug("command handled", "line", line)
	}
	s.cfg.Metrics.CommandObserved(cmd.Kind.Verb(), failed)
	return reply, false
}

// farewell emits the closing line. Errors are swallowed: the peer may
// already be gone, and the farewell is best-effort on every exit path.
func (s *Session) farewell(elapsed time.Duration) {
	// Give a slow peer a moment, but never hang the worker on shutdown.
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.reply(fmt.Sprintf(protocol.MsgFarewell, s.clientID, elapsed.Milliseconds()))
}

// reply writes one LF-terminated line and flushes it.
func (s *Session) reply(line string) error {
	if _, err := s.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return s.writer.Flush()
}
