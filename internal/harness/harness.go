// Package harness replays scripted protocol conversations against a
// fresh graph engine and captures the full transcript.
//
// Each scenario runs over an in-process pipe with a fixed session ID
// and a manual clock, so transcripts are byte-for-byte reproducible
// and suitable for golden file comparison.
package harness

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/roach88/graphline/internal/graph"
	"github.com/roach88/graphline/internal/session"
	"github.com/roach88/graphline/internal/testutil"
)

const stepTimeout = 5 * time.Second

// Result is the outcome of one scenario run.
type Result struct {
	// Transcript is the conversation, one prefixed line per message:
	// "S: " for server lines, "C: " for client lines.
	Transcript []string

	// Failures lists expect-clause mismatches. Empty means every
	// expectation held.
	Failures []string
}

// Passed reports whether every expectation in the scenario held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario against a fresh engine and returns the
// transcript. Transport-level problems (the session dying mid-script)
// are errors; expectation mismatches are recorded in the Result.
func Run(sc *Scenario) (*Result, error) {
	engine := graph.New()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	clock := testutil.NewManualClock(time.Unix(1700000000, 0))
	sess := session.New(serverConn, engine, session.Config{
		IdleTimeout: time.Hour,
		NewID:       func() string { return sc.SessionID },
		Clock:       clock,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	done := make(chan struct{})
	go func() {
		sess.Run()
		close(done)
	}()

	result := &Result{}
	reader := bufio.NewReader(clientConn)

	greeting, err := readLine(clientConn, reader)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: reading greeting: %w", sc.Name, err)
	}
	result.Transcript = append(result.Transcript, "S: "+greeting)

	for i, step := range sc.Steps {
		if step.AdvanceMS > 0 {
			clock.Advance(time.Duration(step.AdvanceMS) * time.Millisecond)
		}
		if step.Send == "" {
			continue
		}

		if err := writeLine(clientConn, step.Send); err != nil {
			return nil, fmt.Errorf("scenario %s: step %d write: %w", sc.Name, i+1, err)
		}
		result.Transcript = append(result.Transcript, "C: "+step.Send)

		reply, err := readLine(clientConn, reader)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: step %d read: %w", sc.Name, i+1, err)
		}
		result.Transcript = append(result.Transcript, "S: "+reply)

		if step.Expect != "" && reply != step.Expect {
			result.Failures = append(result.Failures,
				fmt.Sprintf("step %d: sent %q, want %q, got %q", i+1, step.Send, step.Expect, reply))
		}
	}

	// Unblock the session if the script never said goodbye.
	clientConn.Close()
	select {
	case <-done:
	case <-time.After(stepTimeout):
		return nil, fmt.Errorf("scenario %s: session did not terminate", sc.Name)
	}
	return result, nil
}

func readLine(conn net.Conn, reader *bufio.Reader) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(stepTimeout)); err != nil {
		return "", err
	}
	raw, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(raw, "\n"), nil
}

func writeLine(conn net.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(stepTimeout)); err != nil {
		return err
	}
	_, err := conn.Write([]byte(line + "\n"))
	return err
}
