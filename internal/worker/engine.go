// Package worker implements the protocol engine at the heart of every
// speech worker: a single-threaded loop that reads one line-delimited
// JSON request at a time, dispatches it, and writes exactly one response
// line. A bad line produces a failure response, never a dead worker; the
// loop ends only at end-of-stream.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sonuslabs/sonus-core/internal/protocol"
	"github.com/sonuslabs/sonus-core/internal/telemetry"
)

// maxLineBytes bounds a single request line. Base64 WAV payloads far
// exceed bufio's default 64 KiB token limit.
const maxLineBytes = 64 << 20

// HandlerFunc processes one raw request line and returns the result
// payload to be flattened into the success envelope.
type HandlerFunc func(ctx context.Context, raw []byte) (any, error)

// Engine owns the request/response loop of one worker process.
type Engine struct {
	in       io.Reader
	out      io.Writer
	log      *slog.Logger
	handlers map[string]HandlerFunc
	metrics  *telemetry.WorkerMetrics

	// Guards out: startup events and responses share one stream and
	// response lines must never interleave.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches request instruments to the engine.
func WithMetrics(m *telemetry.WorkerMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(in io.Reader, out io.Writer, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		in:       in,
		out:      out,
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register installs the handler for a command. Workers register exactly
// one; the engine does not care.
func (e *Engine) Register(command string, fn HandlerFunc) {
	e.handlers[command] = fn
}

// EmitReady writes the startup success event together with
// worker-specific metadata. It must be called once, before Run.
func (e *Engine) EmitReady(startupMS int64, extra map[string]any) error {
	event := map[string]any{
		"event":      protocol.EventReady,
		"success":    true,
		"startup_ms": startupMS,
	}
	for k, v := range extra {
		event[k] = v
	}
	return e.emit(event)
}

// EmitStartupError writes the startup failure event. The caller is
// expected to exit non-zero immediately after.
func (e *Engine) EmitStartupError(err error) error {
	return e.emit(map[string]any{
		"event":   protocol.EventError,
		"success": false,
		"error":   err.Error(),
	})
}

// Run serves requests until the input stream ends. Each line is
// processed to completion before the next is read.
func (e *Engine) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(e.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		e.process(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}
	return nil
}

func (e *Engine) process(ctx context.Context, line []byte) {
	start := time.Now()

	// The id is extracted before anything else so even a handler failure
	// can still echo it.
	var env protocol.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		e.metrics.Record(ctx, "", false, time.Since(start))
		e.respondError(nil, fmt.Errorf("parse request: %w", err))
		return
	}

	result, err := e.dispatch(ctx, env.Command, line)
	if err != nil {
		e.metrics.Record(ctx, env.Command, false, time.Since(start))
		e.respondError(env.ID, err)
		return
	}

	e.metrics.Record(ctx, env.Command, true, time.Since(start))
	e.respond(env.ID, result)
}

// dispatch runs the handler for command, converting panics into errors
// so no single request can take down the serving loop.
func (e *Engine) dispatch(ctx context.Context, command string, line []byte) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			e.log.Error("request handler panicked",
				slog.String("command", command),
				slog.Any("panic", r))
		}
	}()

	handler, ok := e.handlers[command]
	if !ok {
		return nil, fmt.Errorf("Unsupported command: %s", command)
	}
	return handler(ctx, line)
}

func (e *Engine) respond(id any, payload any) {
	body := map[string]any{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			e.respondError(id, fmt.Errorf("encode response: %w", err))
			return
		}
		if err := json.Unmarshal(data, &body); err != nil {
			e.respondError(id, fmt.Errorf("encode response: %w", err))
			return
		}
	}
	body["id"] = id
	body["success"] = true

	if err := e.emit(body); err != nil {
		e.log.Error("failed to write response", slog.String("error", err.Error()))
	}
}

func (e *Engine) respondError(id any, cause error) {
	resp := protocol.Response{ID: id, Success: false, Error: cause.Error()}
	if err := e.emit(resp); err != nil {
		e.log.Error("failed to write error response", slog.String("error", err.Error()))
	}
}

// emit writes one JSON line with a single unbuffered Write so the host
// observes it immediately and lines never interleave.
func (e *Engine) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.out.Write(append(data, '\n'))
	return err
}
