package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/elnormous/contenttype"

	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

// ResourceHandler is the function signature bound to a resource read. It may
// fail with ErrResourceNotFound or any other error; the dispatcher reports
// either as a protocol-level error response.
type ResourceHandler func(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)

// StaticResource pairs a resource descriptor with its read handler.
type StaticResource struct {
	Descriptor mcp.Resource
	Handler    ResourceHandler
}

// TextResource builds a StaticResource that always serves the given text.
func TextResource(desc mcp.Resource, text string) StaticResource {
	return StaticResource{
		Descriptor: desc,
		Handler: func(ctx context.Context, _ sessions.Session, uri string) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{URI: uri, MimeType: desc.MimeType, Text: text}}, nil
		},
	}
}

// ResourcesContainer owns an ordered set of resource descriptors keyed by URI
// and their read handlers. Like ToolsContainer, it is registered once at
// startup and frozen before steady-state processing.
type ResourcesContainer struct {
	mu        sync.RWMutex
	frozen    bool
	resources []mcp.Resource             // registration order, for listing
	handlers  map[string]ResourceHandler // uri -> read handler
}

// NewResourcesContainer constructs a container and registers the given
// resources, panicking on duplicates or malformed descriptors.
func NewResourcesContainer(defs ...StaticResource) *ResourcesContainer {
	rc := &ResourcesContainer{handlers: make(map[string]ResourceHandler, len(defs))}
	for _, def := range defs {
		if err := rc.Register(def); err != nil {
			panic(fmt.Sprintf("mcpservice: %v", err))
		}
	}
	return rc
}

// Register adds a resource. It fails with ErrDuplicateResource if the URI is
// taken, ErrRegistryFrozen once serving, and rejects descriptors whose
// declared media type does not parse.
func (rc *ResourcesContainer) Register(def StaticResource) error {
	if def.Descriptor.URI == "" {
		return fmt.Errorf("resource descriptor missing uri")
	}
	if def.Descriptor.MimeType != "" {
		if mt := contenttype.NewMediaType(def.Descriptor.MimeType); mt.Type == "" {
			return fmt.Errorf("register resource %q: invalid media type %q", def.Descriptor.URI, def.Descriptor.MimeType)
		}
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.frozen {
		return fmt.Errorf("register resource %q: %w", def.Descriptor.URI, ErrRegistryFrozen)
	}
	if _, exists := rc.handlers[def.Descriptor.URI]; exists {
		return fmt.Errorf("register resource %q: %w", def.Descriptor.URI, ErrDuplicateResource)
	}
	rc.resources = append(rc.resources, def.Descriptor)
	rc.handlers[def.Descriptor.URI] = def.Handler
	return nil
}

// Freeze marks the end of the registration phase. It is idempotent.
func (rc *ResourcesContainer) Freeze() {
	rc.mu.Lock()
	rc.frozen = true
	rc.mu.Unlock()
}

// Snapshot returns a copy of the descriptors in registration order.
func (rc *ResourcesContainer) Snapshot() []mcp.Resource {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]mcp.Resource, len(rc.resources))
	copy(out, rc.resources)
	return out
}

// Find returns the descriptor for a resource URI.
func (rc *ResourcesContainer) Find(uri string) (mcp.Resource, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, r := range rc.resources {
		if r.URI == uri {
			return r, true
		}
	}
	return mcp.Resource{}, false
}

// ListResources implements ResourcesCapability.
func (rc *ResourcesContainer) ListResources(ctx context.Context, session sessions.Session) ([]mcp.Resource, error) {
	return rc.Snapshot(), nil
}

// ReadResource implements ResourcesCapability. Unknown URIs fail with
// ErrResourceNotFound; handler panics are recovered into handler failures.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	rc.mu.RLock()
	handler, exists := rc.handlers[uri]
	rc.mu.RUnlock()
	if !exists || handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	return invokeResourceHandler(ctx, session, handler, uri)
}

func invokeResourceHandler(ctx context.Context, session sessions.Session, handler ResourceHandler, uri string) (contents []mcp.ResourceContents, err error) {
	defer func() {
		if r := recover(); r != nil {
			contents = nil
			err = fmt.Errorf("resource handler panic: %v", r)
		}
	}()
	return handler(ctx, session, uri)
}
