// Package sessions models the lifetime of one protocol session. A session is
// owned by exactly one transport connection: it is created when the
// initialize handshake completes, carries the negotiated protocol version and
// capability set for the rest of the connection, and is destroyed when the
// transport closes. No session state survives the connection.
package sessions

import (
	"github.com/google/uuid"

	"github.com/toolbridge/mcp-stdio-go/mcp"
)

// State is the handshake lifecycle of a session's transport.
type State string

const (
	// StateUninitialized means no initialize request has been accepted yet;
	// only initialize traffic is valid.
	StateUninitialized State = "uninitialized"
	// StateInitializing means the initialize response was sent and the server
	// is waiting for the client's initialized notification.
	StateInitializing State = "initializing"
	// StateReady means steady-state traffic is accepted.
	StateReady State = "ready"
	// StateClosed is terminal; no further messages are processed.
	StateClosed State = "closed"
)

// Session is the identity handed to capability implementations. It is the
// unit of isolation: handlers must not assume any state beyond it.
type Session interface {
	// SessionID returns a process-unique identifier for this connection.
	SessionID() string

	// ProtocolVersion returns the protocol revision negotiated at initialize.
	ProtocolVersion() string

	// ClientInfo returns the implementation info the client sent during
	// initialize.
	ClientInfo() mcp.ImplementationInfo
}

var _ Session = (*LocalSession)(nil)

// LocalSession is the in-process Session for a single stdio connection. Its
// fields are fixed at handshake time and read-only afterwards, so it is safe
// for concurrent use without locking.
type LocalSession struct {
	id              string
	protocolVersion string
	clientInfo      mcp.ImplementationInfo
	clientCaps      mcp.ClientCapabilities
}

// NewLocalSession mints a session for a freshly negotiated connection.
func NewLocalSession(protocolVersion string, clientInfo mcp.ImplementationInfo, clientCaps mcp.ClientCapabilities) *LocalSession {
	return &LocalSession{
		id:              uuid.NewString(),
		protocolVersion: protocolVersion,
		clientInfo:      clientInfo,
		clientCaps:      clientCaps,
	}
}

func (s *LocalSession) SessionID() string { return s.id }

func (s *LocalSession) ProtocolVersion() string { return s.protocolVersion }

func (s *LocalSession) ClientInfo() mcp.ImplementationInfo { return s.clientInfo }

// ClientCapabilities returns the capability set the client advertised. The
// server records it for diagnostics; nothing in this design acts on it.
func (s *LocalSession) ClientCapabilities() mcp.ClientCapabilities { return s.clientCaps }
