package mcpservice

import (
	"context"

	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

// ServerOption configures the ServerCapabilities built by NewServer.
type ServerOption func(*server)

type server struct {
	info            mcp.ImplementationInfo
	protocolVersion string
	instructions    string

	toolsCap     ToolsCapability
	resourcesCap ResourcesCapability
}

// NewServer assembles a ServerCapabilities from static configuration. The
// registry containers are wired in here once at startup; the transport treats
// the result as read-only for the life of the process.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithServerInfo sets the implementation info returned during initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithPreferredProtocolVersion pins the protocol version the server replies
// with regardless of what the client requests.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *server) { s.protocolVersion = version }
}

// WithInstructions sets optional human-readable instructions returned during
// initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.instructions = instr }
}

// WithToolsCapability wires the tools surface. Passing a *ToolsContainer is
// the common case.
func WithToolsCapability(cap ToolsCapability) ServerOption {
	return func(s *server) { s.toolsCap = cap }
}

// WithResourcesCapability wires the resources surface.
func WithResourcesCapability(cap ResourcesCapability) ServerOption {
	return func(s *server) { s.resourcesCap = cap }
}

// GetServerInfo implements ServerCapabilities.
func (s *server) GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error) {
	return s.info, nil
}

// GetPreferredProtocolVersion implements ServerCapabilities.
func (s *server) GetPreferredProtocolVersion(ctx context.Context) (string, bool, error) {
	if s.protocolVersion != "" {
		return s.protocolVersion, true, nil
	}
	return "", false, nil
}

// GetInstructions implements ServerCapabilities.
func (s *server) GetInstructions(ctx context.Context, session sessions.Session) (string, bool, error) {
	if s.instructions != "" {
		return s.instructions, true, nil
	}
	return "", false, nil
}

// GetToolsCapability implements ServerCapabilities.
func (s *server) GetToolsCapability(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	if s.toolsCap != nil {
		return s.toolsCap, true, nil
	}
	return nil, false, nil
}

// GetResourcesCapability implements ServerCapabilities.
func (s *server) GetResourcesCapability(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error) {
	if s.resourcesCap != nil {
		return s.resourcesCap, true, nil
	}
	return nil, false, nil
}
