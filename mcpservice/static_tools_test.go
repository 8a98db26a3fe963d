package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

func echoTool() StaticTool {
	return StaticTool{
		Descriptor: mcp.Tool{
			Name: "echo",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]mcp.SchemaProperty{"text": {Type: "string"}},
				Required:   []string{"text"},
			},
		},
		Handler: func(ctx context.Context, _ sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(req.Arguments, &args); err != nil {
				return nil, err
			}
			return TextResult(args.Text), nil
		},
	}
}

func TestToolsContainerListsInRegistrationOrder(t *testing.T) {
	tc := NewToolsContainer()
	for _, name := range []string{"c", "a", "b"} {
		def := echoTool()
		def.Descriptor.Name = name
		if err := tc.Register(def); err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
	}

	tools, err := tc.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(tools) != len(want) {
		t.Fatalf("len(tools) = %d, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tools[%d].Name = %q, want %q", i, tools[i].Name, name)
		}
	}

	// Listing twice yields the same snapshot.
	again, _ := tc.ListTools(context.Background(), nil)
	for i := range tools {
		if again[i].Name != tools[i].Name {
			t.Fatalf("listing is not idempotent at %d", i)
		}
	}
}

func TestToolsContainerRejectsDuplicates(t *testing.T) {
	tc := NewToolsContainer(echoTool())
	if err := tc.Register(echoTool()); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("err = %v, want ErrDuplicateTool", err)
	}
}

func TestNewToolsContainerPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewToolsContainer(echoTool(), echoTool())
}

func TestToolsContainerFreezeRejectsRegistration(t *testing.T) {
	tc := NewToolsContainer(echoTool())
	tc.Freeze()
	tc.Freeze() // idempotent

	def := echoTool()
	def.Descriptor.Name = "late"
	if err := tc.Register(def); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("err = %v, want ErrRegistryFrozen", err)
	}
	if _, ok := tc.Find("late"); ok {
		t.Fatal("rejected registration is visible")
	}
}

func TestCallToolUnknownNameNeverInvokesHandlers(t *testing.T) {
	invoked := 0
	def := echoTool()
	def.Handler = func(ctx context.Context, _ sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		invoked++
		return TextResult("ok"), nil
	}
	tc := NewToolsContainer(def)

	_, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{Name: "nope"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
	if invoked != 0 {
		t.Fatalf("handler invoked %d times for unknown tool", invoked)
	}
}

func TestCallToolValidatesBeforeInvoking(t *testing.T) {
	invoked := 0
	def := echoTool()
	inner := def.Handler
	def.Handler = func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		invoked++
		return inner(ctx, s, req)
	}
	tc := NewToolsContainer(def)

	_, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{Name: "echo", Arguments: json.RawMessage(`{}`)})
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("err = %v, want *ArgumentError", err)
	}
	if argErr.Field != "text" {
		t.Fatalf("Field = %q, want text", argErr.Field)
	}
	if invoked != 0 {
		t.Fatal("handler ran on invalid arguments")
	}
}

func TestCallToolEcho(t *testing.T) {
	tc := NewToolsContainer(echoTool())

	res, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hello"}`),
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatal("IsError set on successful call")
	}
	if len(res.Content) != 1 || res.Content[0].Text != "hello" {
		t.Fatalf("content = %+v", res.Content)
	}
}

func TestCallToolHandlerErrorPassesThrough(t *testing.T) {
	boom := errors.New("backend unavailable")
	def := echoTool()
	def.Handler = func(ctx context.Context, _ sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, boom
	}
	tc := NewToolsContainer(def)

	_, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{Name: "echo", Arguments: json.RawMessage(`{"text":"x"}`)})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want handler error", err)
	}
}

func TestCallToolRecoversHandlerPanic(t *testing.T) {
	def := echoTool()
	def.Handler = func(ctx context.Context, _ sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("kaboom")
	}
	tc := NewToolsContainer(def)

	_, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{Name: "echo", Arguments: json.RawMessage(`{"text":"x"}`)})
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
}

type reflectedArgs struct {
	Location string `json:"location"`
	Days     int    `json:"days,omitempty" jsonschema:"minimum=1,maximum=5,default=3"`
	Units    string `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial,default=metric"`
}

func TestNewToolReflectsSchema(t *testing.T) {
	def := NewTool("forecast", func(ctx context.Context, _ sessions.Session, args reflectedArgs) (*mcp.CallToolResult, error) {
		return TextResult(fmt.Sprintf("%s/%d/%s", args.Location, args.Days, args.Units)), nil
	}, WithToolDescription("mock forecast"))

	schema := def.Descriptor.InputSchema
	if schema.Type != "object" {
		t.Fatalf("schema.Type = %q", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "location" {
		t.Fatalf("Required = %v, want [location]", schema.Required)
	}

	days, ok := schema.Properties["days"]
	if !ok {
		t.Fatal("days property missing")
	}
	if days.Type != "integer" || days.Minimum == nil || *days.Minimum != 1 || days.Maximum == nil || *days.Maximum != 5 {
		t.Fatalf("days = %+v", days)
	}

	units, ok := schema.Properties["units"]
	if !ok {
		t.Fatal("units property missing")
	}
	if len(units.Enum) != 2 {
		t.Fatalf("units.Enum = %v", units.Enum)
	}
}

func TestNewToolAppliesDefaultsThroughTypedDecode(t *testing.T) {
	var got reflectedArgs
	def := NewTool("forecast", func(ctx context.Context, _ sessions.Session, args reflectedArgs) (*mcp.CallToolResult, error) {
		got = args
		return TextResult("ok"), nil
	})
	tc := NewToolsContainer(def)

	if _, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{
		Name:      "forecast",
		Arguments: json.RawMessage(`{"location":"Oslo"}`),
	}); err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	if got.Location != "Oslo" {
		t.Errorf("Location = %q", got.Location)
	}
	if got.Days != 3 {
		t.Errorf("Days = %d, want default 3", got.Days)
	}
	if got.Units != "metric" {
		t.Errorf("Units = %q, want default metric", got.Units)
	}
}
