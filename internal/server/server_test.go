package server

import (
	"bufio"
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphline/internal/graph"
)

// startServer runs a server on an ephemeral port and returns its
// address plus a shutdown function that blocks until drain completes.
func startServer(t *testing.T, engine *graph.Engine, cfg Config) (addr string, shutdown func()) {
	t.Helper()
	cfg.ListenAddr = "127.0.0.1:0"
	srv := New(engine, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" },
		2*time.Second, 5*time.Millisecond, "server never bound")

	shutdown = func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not drain in time")
		}
	}
	return srv.Addr(), shutdown
}

type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testConn) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testConn) recv() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

const clientID = "0f7e9a1c-0b2d-4e3f-8a9b-1c2d3e4f5a6b"

// handshake consumes the server greeting and completes the client side,
// returning the server-assigned session ID.
func (c *testConn) handshake() string {
	c.t.Helper()
	greeting := c.recv()
	require.True(c.t, strings.HasPrefix(greeting, "HI, I AM "), "got %q", greeting)
	sessionID := strings.TrimPrefix(greeting, "HI, I AM ")

	c.send("HI, I AM " + clientID)
	require.Equal(c.t, "HI "+clientID, c.recv())
	return sessionID
}

func TestServer_EndToEndConversation(t *testing.T) {
	addr, shutdown := startServer(t, graph.New(), Config{})
	defer shutdown()

	c := dial(t, addr)
	c.handshake()

	c.send("ADD NODE alpha")
	assert.Equal(t, "NODE ADDED", c.recv())
	c.send("ADD NODE beta")
	assert.Equal(t, "NODE ADDED", c.recv())
	c.send("ADD EDGE alpha beta 4")
	assert.Equal(t, "EDGE ADDED", c.recv())
	c.send("SHORTEST PATH alpha beta")
	assert.Equal(t, "4", c.recv())

	c.send("BYE MATE!")
	farewell := c.recv()
	assert.Regexp(t, `^BYE `+clientID+`, WE SPOKE FOR [0-9]+ MS$`, farewell)

	_, err := c.reader.ReadString('\n')
	assert.Error(t, err, "connection must be closed after farewell")
}

func TestServer_GraphIsSharedAcrossConnections(t *testing.T) {
	addr, shutdown := startServer(t, graph.New(), Config{})
	defer shutdown()

	first := dial(t, addr)
	first.handshake()
	first.send("ADD NODE shared")
	assert.Equal(t, "NODE ADDED", first.recv())
	first.send("BYE MATE!")
	first.recv()

	second := dial(t, addr)
	second.handshake()
	second.send("ADD NODE shared")
	assert.Equal(t, "ERROR: NODE ALREADY EXISTS", second.recv())
	second.send("BYE MATE!")
	second.recv()
}

func TestServer_SessionIDsAreUnique(t *testing.T) {
	addr, shutdown := startServer(t, graph.New(), Config{})
	defer shutdown()

	first := dial(t, addr)
	second := dial(t, addr)
	firstID := first.handshake()
	secondID := second.handshake()

	assert.NotEqual(t, firstID, secondID)

	first.send("BYE MATE!")
	second.send("BYE MATE!")
	first.recv()
	second.recv()
}

func TestServer_ShutdownClosesLiveSessions(t *testing.T) {
	addr, shutdown := startServer(t, graph.New(), Config{IdleTimeout: time.Hour})
	c := dial(t, addr)
	c.handshake()

	// The client is idle; shutdown must still complete promptly because
	// the server closes live connections instead of waiting them out.
	doneBy := time.Now().Add(3 * time.Second)
	shutdown()
	assert.True(t, time.Now().Before(doneBy), "shutdown took too long")
}

func TestMetrics_CountsSessionsAndCommands(t *testing.T) {
	metrics := NewMetrics()
	addr, shutdown := startServer(t, graph.New(), Config{Metrics: metrics})
	defer shutdown()

	c := dial(t, addr)
	c.handshake()
	c.send("ADD NODE m1")
	c.recv()
	c.send("ADD NODE m1")
	c.recv()
	c.send("what is this")
	assert.Equal(t, "SORRY, I DID NOT UNDERSTAND THAT", c.recv())
	c.send("BYE MATE!")
	c.recv()

	require.Eventually(t, func() bool {
		return scrape(t, metrics)["graphline_sessions_active"] == "0"
	}, 2*time.Second, 10*time.Millisecond)

	values := scrape(t, metrics)
	assert.Equal(t, "1", values["graphline_sessions_total"])
	assert.Equal(t, "2", values[`graphline_commands_total{verb="add_node"}`])
	assert.Equal(t, "1", values[`graphline_command_errors_total{verb="add_node"}`])
	assert.Equal(t, "1", values[`graphline_command_errors_total{verb="unknown"}`])
}

// scrape renders the registry through the real /metrics handler and
// returns sample values keyed by metric line prefix.
func scrape(t *testing.T, metrics *Metrics) map[string]string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	values := make(map[string]string)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name, value, ok := strings.Cut(line, " "); ok {
			values[name] = value
		}
	}
	return values
}
