package mcpservice

import (
	"context"
	"errors"

	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

// Registration and dispatch errors. The transport maps these to protocol
// error codes at the dispatch boundary; everywhere else they are ordinary
// sentinel errors usable with errors.Is.
var (
	// ErrDuplicateTool is returned when registering a tool whose name is
	// already present in the container.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrDuplicateResource is returned when registering a resource whose URI
	// is already present in the container.
	ErrDuplicateResource = errors.New("duplicate resource uri")
	// ErrRegistryFrozen is returned when registering after the container has
	// been handed to a running transport.
	ErrRegistryFrozen = errors.New("registry is frozen")
	// ErrToolNotFound is returned by CallTool for an unregistered tool name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrResourceNotFound is returned by ReadResource for an unregistered
	// resource URI. Resource read handlers may also return it to signal that
	// a URI within their namespace does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// ServerCapabilities is the registry surface the transport dispatches
// against. Implementations must be safe for concurrent use; the capability
// getters are called on every request and should be inexpensive.
//
// Capability getters return (cap, ok, err). ok == false means the capability
// is absent and is not advertised during initialize; err is reserved for
// internal failures while determining support.
type ServerCapabilities interface {
	// GetServerInfo returns the implementation info surfaced in the
	// initialize result.
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	// GetPreferredProtocolVersion returns the server's pinned protocol
	// version, if any. When ok is false the transport negotiates from the
	// client's requested version instead.
	GetPreferredProtocolVersion(ctx context.Context) (version string, ok bool, err error)

	// GetInstructions returns optional human-readable instructions included
	// in the initialize result. ok=false omits the field.
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)

	// GetToolsCapability returns the tools surface, if the server has one.
	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)

	// GetResourcesCapability returns the resources surface, if the server has
	// one.
	GetResourcesCapability(ctx context.Context, session sessions.Session) (cap ResourcesCapability, ok bool, err error)
}

// ToolsCapability is the tools surface the dispatcher calls into. All methods
// must be safe for concurrent use.
type ToolsCapability interface {
	// ListTools returns the declared tools in registration order. The result
	// is a snapshot; callers own the returned slice.
	ListTools(ctx context.Context, session sessions.Session) ([]mcp.Tool, error)

	// CallTool validates the request against the named tool's declared input
	// schema and invokes its handler with defaults applied.
	//
	// Error contract: ErrToolNotFound for an unknown name and *ArgumentError
	// for a schema violation are protocol-level failures and the handler is
	// never invoked for them. Any other error is a handler failure, which the
	// dispatcher reports as tool output rather than a protocol error.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// ResourcesCapability is the resources surface the dispatcher calls into. All
// methods must be safe for concurrent use.
type ResourcesCapability interface {
	// ListResources returns the declared resources in registration order.
	ListResources(ctx context.Context, session sessions.Session) ([]mcp.Resource, error)

	// ReadResource returns the contents for a resource URI. Unknown URIs
	// fail with ErrResourceNotFound; any other error is a handler failure
	// and becomes a protocol-level error response (unlike tool failures).
	ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)
}
