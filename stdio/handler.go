package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/toolbridge/mcp-stdio-go/internal/engine"
	"github.com/toolbridge/mcp-stdio-go/internal/jsonrpc"
	"github.com/toolbridge/mcp-stdio-go/internal/logctx"
	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/mcpservice"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

// Handler serves a single MCP session over a byte stream. It owns the
// connection lifecycle: the initialize handshake, steady-state dispatch, and
// teardown when the input stream closes.
type Handler struct {
	srv mcpservice.ServerCapabilities
	r   io.Reader
	w   io.Writer
	log *slog.Logger

	served atomic.Bool

	// Session state is only touched from the Serve loop, so it needs no lock.
	state sessions.State
	sess  *sessions.LocalSession
}

// NewHandler builds a Handler over the given capabilities. Without options it
// reads from os.Stdin, writes to os.Stdout, and logs through slog.Default().
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{
		srv:   srv,
		r:     os.Stdin,
		w:     os.Stdout,
		log:   slog.Default(),
		state: sessions.StateUninitialized,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	return h
}

type readItem struct {
	frame []byte
	err   error
}

// Serve runs the session until the input stream closes, ctx is canceled, or
// the transport fails. A clean EOF returns nil after in-flight handlers
// drain; cancellation returns ctx.Err(). Serve may be called at most once.
//
// The read loop never blocks on a handler: each steady-state request runs on
// its own goroutine and responses are written atomically, so they may leave
// in any order.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.served.CompareAndSwap(false, true) {
		return errors.New("stdio: Serve called more than once")
	}

	h.freezeRegistries(ctx)

	eng := engine.NewEngine(h.srv, engine.WithLogger(h.log))
	fr := newFrameReader(h.r)
	fw := newFrameWriter(h.w)

	items := make(chan readItem)
	go func() {
		defer close(items)
		for {
			frame, err := fr.next()
			select {
			case items <- readItem{frame: frame, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			h.state = sessions.StateClosed
			h.log.InfoContext(ctx, "stdio.serve.canceled")
			return ctx.Err()
		case item, ok := <-items:
			if !ok || errors.Is(item.err, io.EOF) {
				h.state = sessions.StateClosed
				h.log.InfoContext(ctx, "stdio.serve.eof")
				return nil
			}
			if item.err != nil {
				h.state = sessions.StateClosed
				return fmt.Errorf("read frame: %w", item.err)
			}
			h.handleFrame(ctx, eng, fw, item.frame, &wg)
		}
	}
}

// freezeRegistries closes the registration window on any capability container
// that supports it, before the first frame is processed.
func (h *Handler) freezeRegistries(ctx context.Context) {
	type freezer interface{ Freeze() }
	if cap, ok, err := h.srv.GetToolsCapability(ctx, nil); err == nil && ok {
		if f, ok := cap.(freezer); ok {
			f.Freeze()
		}
	}
	if cap, ok, err := h.srv.GetResourcesCapability(ctx, nil); err == nil && ok {
		if f, ok := cap.(freezer); ok {
			f.Freeze()
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, eng *engine.Engine, fw *frameWriter, frame []byte, wg *sync.WaitGroup) {
	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		// Answer with a parse error only when an id can still be recovered;
		// otherwise there is nothing to correlate the response to.
		if id := jsonrpc.RecoverRequestID(frame); id != nil {
			h.log.InfoContext(ctx, "stdio.frame.malformed", slog.String("err", err.Error()))
			h.writeResponse(ctx, fw, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeParseError, fmt.Sprintf("malformed message: %s", err.Error()), nil))
		} else {
			h.log.InfoContext(ctx, "stdio.frame.dropped", slog.String("err", err.Error()))
		}
		return
	}

	switch msg.Type() {
	case jsonrpc.MessageTypeResponse:
		// This server issues no requests of its own, so inbound responses
		// have nothing to match against.
		h.log.InfoContext(ctx, "stdio.frame.unexpected_response", slog.String("id", msg.ID.String()))
	case jsonrpc.MessageTypeNotification:
		h.handleNotification(ctx, msg.AsRequest())
	case jsonrpc.MessageTypeRequest:
		h.handleRequest(ctx, eng, fw, msg.AsRequest(), wg)
	}
}

func (h *Handler) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch req.Method {
	case string(mcp.InitializedNotificationMethod):
		if h.state != sessions.StateInitializing {
			h.log.WarnContext(ctx, "stdio.notification.unexpected_initialized", slog.String("state", string(h.state)))
			return
		}
		h.state = sessions.StateReady
		h.log.InfoContext(ctx, "stdio.session.ready", slog.String("session_id", h.sess.SessionID()))
	default:
		h.log.InfoContext(ctx, "stdio.notification.ignored", slog.String("method", req.Method))
	}
}

func (h *Handler) handleRequest(ctx context.Context, eng *engine.Engine, fw *frameWriter, req *jsonrpc.Request, wg *sync.WaitGroup) {
	if req.Method == string(mcp.InitializeMethod) {
		h.handleInitialize(ctx, eng, fw, req)
		return
	}

	if h.state != sessions.StateReady {
		h.writeResponse(ctx, fw, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeServerNotInitialized, "server not initialized", nil))
		return
	}

	sess := h.sess
	sctx := logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           string(sessions.StateReady),
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := eng.HandleRequest(sctx, sess, req)
		if err != nil {
			h.log.ErrorContext(sctx, "stdio.dispatch.fail", slog.String("err", err.Error()))
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
		h.writeResponse(sctx, fw, resp)
	}()
}

// handleInitialize runs inline on the serve loop so the initialize response
// is on the wire before any later request is read.
func (h *Handler) handleInitialize(ctx context.Context, eng *engine.Engine, fw *frameWriter, req *jsonrpc.Request) {
	if h.state != sessions.StateUninitialized {
		h.writeResponse(ctx, fw, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "server already initialized", nil))
		return
	}

	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeResponse(ctx, fw, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil))
		return
	}

	sess, res, err := eng.InitializeSession(ctx, &params)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.initialize.fail", slog.String("err", err.Error()))
		h.writeResponse(ctx, fw, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
		return
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.initialize.encode_fail", slog.String("err", err.Error()))
		h.writeResponse(ctx, fw, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
		return
	}

	h.sess = sess
	h.state = sessions.StateInitializing
	h.writeResponse(ctx, fw, resp)
}

func (h *Handler) writeResponse(ctx context.Context, fw *frameWriter, resp *jsonrpc.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.write.encode_fail", slog.String("err", err.Error()))
		return
	}
	if err := fw.writeFrame(b); err != nil {
		h.log.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}
