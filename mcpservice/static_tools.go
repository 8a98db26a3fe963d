package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

// ToolHandler is the function signature bound to a tool. The arguments it
// receives have already been validated against the tool's declared schema and
// had defaults substituted.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolsContainer owns an ordered set of tool descriptors and their handlers.
// Registration happens once at startup; the transport freezes the container
// before steady-state processing, after which it is read-only.
type ToolsContainer struct {
	mu       sync.RWMutex
	frozen   bool
	tools    []mcp.Tool             // registration order, for listing
	handlers map[string]ToolHandler // name -> handler
}

// NewToolsContainer constructs a container and registers the given tools,
// panicking on duplicates. Startup-time registration failures are programming
// errors, so the panic shows up in the first test run rather than being
// silently swallowed.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	tc := &ToolsContainer{handlers: make(map[string]ToolHandler, len(defs))}
	for _, def := range defs {
		if err := tc.Register(def); err != nil {
			panic(fmt.Sprintf("mcpservice: %v", err))
		}
	}
	return tc
}

// Register adds a tool. It fails with ErrDuplicateTool if the name is taken
// and ErrRegistryFrozen once the container is serving.
func (tc *ToolsContainer) Register(def StaticTool) error {
	if def.Descriptor.Name == "" {
		return fmt.Errorf("tool descriptor missing name")
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.frozen {
		return fmt.Errorf("register tool %q: %w", def.Descriptor.Name, ErrRegistryFrozen)
	}
	if _, exists := tc.handlers[def.Descriptor.Name]; exists {
		return fmt.Errorf("register tool %q: %w", def.Descriptor.Name, ErrDuplicateTool)
	}
	tc.tools = append(tc.tools, def.Descriptor)
	tc.handlers[def.Descriptor.Name] = def.Handler
	return nil
}

// Freeze marks the end of the registration phase. It is idempotent.
func (tc *ToolsContainer) Freeze() {
	tc.mu.Lock()
	tc.frozen = true
	tc.mu.Unlock()
}

// Snapshot returns a copy of the descriptors in registration order.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// Find returns the descriptor for a tool name.
func (tc *ToolsContainer) Find(name string) (mcp.Tool, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	for _, t := range tc.tools {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

// ListTools implements ToolsCapability.
func (tc *ToolsContainer) ListTools(ctx context.Context, session sessions.Session) ([]mcp.Tool, error) {
	return tc.Snapshot(), nil
}

// CallTool implements ToolsCapability. Lookup and validation failures are
// returned as ErrToolNotFound / *ArgumentError without invoking the handler;
// handler panics are recovered and surfaced as handler failures so a single
// bad call can never take down the session.
func (tc *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, &ArgumentError{Field: "name", Reason: "required property is missing"}
	}

	tc.mu.RLock()
	handler, exists := tc.handlers[req.Name]
	tc.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}

	desc, _ := tc.Find(req.Name)
	args, err := ValidateArguments(desc.InputSchema, req.Arguments)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("normalize arguments for tool %q: %w", req.Name, err)
	}

	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return invokeToolHandler(ctx, session, handler, &mcp.CallToolRequest{Name: req.Name, Arguments: normalized})
}

func invokeToolHandler(ctx context.Context, session sessions.Session, handler ToolHandler, req *mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("tool handler panic: %v", r)
		}
	}()
	return handler(ctx, session, req)
}

// TextResult builds a CallToolResult with a single text content block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// ErrorResult builds a tool-level failure result: IsError is set and the
// message is carried as tool output. This is a successful protocol response
// by design.
func ErrorResult(format string, a ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, a...)
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: msg}}, IsError: true}
}

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// NewTool constructs a StaticTool from a typed args struct A. The input
// schema is reflected from A with invopop/jsonschema (honoring json and
// jsonschema struct tags, including required, enum, default, and numeric
// bounds), and the handler receives the validated, default-applied arguments
// decoded into A.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, args A) (*mcp.CallToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectToolInputSchema[A](),
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if err := json.Unmarshal(req.Arguments, &a); err != nil {
				return nil, fmt.Errorf("decode arguments for tool %q: %w", name, err)
			}
		}
		return fn(ctx, session, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectToolInputSchema reflects a Go type A into the simplified wire schema.
// Only object schemas map cleanly; any other shape degrades to an open empty
// object.
func reflectToolInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// toSchemaProperty recursively maps a reflected jsonschema node to the
// simplified wire property.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if f, err := s.Minimum.Float64(); err == nil && s.Minimum != "" {
		p.Minimum = &f
	}
	if f, err := s.Maximum.Float64(); err == nil && s.Maximum != "" {
		p.Maximum = &f
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}
