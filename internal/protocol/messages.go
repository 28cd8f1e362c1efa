// Package protocol defines the wire catalog and the command parser for
// the line-oriented graph protocol.
//
// Every exchange is a single LF-terminated UTF-8 line. The server speaks
// first with a greeting carrying its session ID; from then on each client
// line produces exactly one reply line.
package protocol

// Server-to-client message catalog. Formatted messages use fmt verbs.
const (
	// MsgGreeting announces the session; %s is the server session ID.
	MsgGreeting = "HI, I AM %s"

	// MsgGreetingReply acknowledges the client greeting; %s is the client ID.
	MsgGreetingReply = "HI %s"

	// MsgFarewell closes the conversation; %s is the client ID (verbatim,
	// possibly empty if the client never greeted), %d is elapsed ms.
	MsgFarewell = "BYE %s, WE SPOKE FOR %d MS"

	// MsgSorry answers any line that matches no known pattern.
	MsgSorry = "SORRY, I DID NOT UNDERSTAND THAT"

	MsgNodeAdded    = "NODE ADDED"
	MsgNodeRemoved  = "NODE REMOVED"
	MsgNodeExists   = "ERROR: NODE ALREADY EXISTS"
	MsgNodeNotFound = "ERROR: NODE NOT FOUND"
	MsgEdgeAdded    = "EDGE ADDED"
	MsgEdgeRemoved  = "EDGE REMOVED"
)

// ClientFarewell is the literal line a client sends to end the session.
const ClientFarewell = "BYE MATE!"
