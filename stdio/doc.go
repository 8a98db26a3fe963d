// Package stdio implements a single-connection transport over
// stdin/stdout. It is intended for embedding servers as subprocesses, local
// development, and environments where spawning a child process and piping
// JSON is simpler than running a network server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : newline-delimited JSON-RPC, tolerant of arbitrary
//	                   read chunk sizes; writes are atomic per message
//	Sessions         : ephemeral; created by the initialize handshake and
//	                   destroyed when the stream closes
//	Dispatch         : each request runs on its own goroutine so a slow
//	                   handler never blocks the read loop; responses may
//	                   complete out of request order
//
// Options allow supplying an alternate io.Reader / io.Writer or a custom
// logger. Logs go to the logger, never to the output stream, which carries
// only protocol frames.
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "my-server", Version: "0.1.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//	h := stdio.NewHandler(srv)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
