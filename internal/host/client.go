// Package host spawns and talks to speech worker subprocesses. Workers
// speak line-delimited JSON: requests on their stdin, a single startup
// event followed by responses on their stdout, logs on stderr.
package host

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/sonuslabs/sonus-core/internal/protocol"
)

// maxResponseBytes bounds one worker response line. Synthesis responses
// carry whole WAV files as base64.
const maxResponseBytes = 64 << 20

const defaultReadyTimeout = 30 * time.Second

// SpawnOptions configures a worker subprocess.
type SpawnOptions struct {
	Command      string
	Env          []string
	ReadyTimeout time.Duration
	Log          *slog.Logger
}

// SynthesisOptions tune one synthesize request. Zero values are omitted
// from the request so the worker applies its own defaults.
type SynthesisOptions struct {
	LengthScale float64
	Volume      float64
}

// Client is a handle on one running worker. Requests are serialized:
// a worker processes one line at a time, so pipelining buys nothing.
type Client struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan []byte
	ready protocol.StartupEvent
	log   *slog.Logger

	mu sync.Mutex
}

// Spawn starts the worker command and waits for its startup event.
func Spawn(ctx context.Context, opts SpawnOptions) (*Client, error) {
	args, err := shellwords.Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse worker command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("worker command is empty")
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	go forwardStderr(stderr, log)

	c := newClient(stdin, stdout, log)
	c.cmd = cmd

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if err := c.awaitReady(timeout); err != nil {
		c.kill()
		return nil, err
	}

	log.Info("worker ready",
		slog.String("command", args[0]),
		slog.Int64("startup_ms", c.ready.StartupMS))
	return c, nil
}

// newClient wires a client over raw pipes. Spawn uses it against a real
// subprocess; tests use it against an in-process engine.
func newClient(stdin io.WriteCloser, stdout io.Reader, log *slog.Logger) *Client {
	c := &Client{
		stdin: stdin,
		lines: make(chan []byte, 8),
		log:   log,
	}
	go c.readLines(stdout)
	return c
}

func (c *Client) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		c.lines <- line
	}
	close(c.lines)
}

func forwardStderr(r io.Reader, log *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug("worker stderr", slog.String("line", scanner.Text()))
	}
}

func (c *Client) awaitReady(timeout time.Duration) error {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return errors.New("worker exited before its startup event")
		}
		var evt protocol.StartupEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return fmt.Errorf("parse startup event: %w", err)
		}
		if !evt.Success {
			return fmt.Errorf("worker startup failed: %s", evt.Error)
		}
		c.ready = evt
		return nil
	case <-time.After(timeout):
		return errors.New("timed out waiting for worker startup event")
	}
}

// Ready reports the startup event metadata the worker announced.
func (c *Client) Ready() protocol.StartupEvent {
	return c.ready
}

// Synthesize asks the worker to render text to WAV audio.
func (c *Client) Synthesize(ctx context.Context, text string, opts SynthesisOptions) (protocol.SynthesizeResult, error) {
	req := map[string]any{
		"command": protocol.CommandSynthesize,
		"text":    text,
	}
	if opts.LengthScale > 0 {
		req["length_scale"] = opts.LengthScale
	}
	if opts.Volume > 0 {
		req["volume"] = opts.Volume
	}

	line, err := c.call(ctx, req)
	if err != nil {
		return protocol.SynthesizeResult{}, err
	}

	var resp struct {
		protocol.Response
		protocol.SynthesizeResult
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return protocol.SynthesizeResult{}, fmt.Errorf("parse synthesize response: %w", err)
	}
	if !resp.Success {
		return protocol.SynthesizeResult{}, fmt.Errorf("synthesize failed: %s", resp.Response.Error)
	}
	return resp.SynthesizeResult, nil
}

// Transcribe asks the worker to recognize speech in a WAV payload.
func (c *Client) Transcribe(ctx context.Context, wavData []byte, language string) (protocol.TranscribeResult, error) {
	req := map[string]any{
		"command":   protocol.CommandTranscribe,
		"audio_b64": base64.StdEncoding.EncodeToString(wavData),
	}
	if language != "" {
		req["language"] = language
	}

	line, err := c.call(ctx, req)
	if err != nil {
		return protocol.TranscribeResult{}, err
	}

	var resp struct {
		protocol.Response
		protocol.TranscribeResult
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return protocol.TranscribeResult{}, fmt.Errorf("parse transcribe response: %w", err)
	}
	if !resp.Success {
		return protocol.TranscribeResult{}, fmt.Errorf("transcribe failed: %s", resp.Response.Error)
	}
	return resp.TranscribeResult, nil
}

// call sends one request line and reads lines until the response with the
// matching id arrives. The mutex keeps requests strictly one at a time.
func (c *Client) call(ctx context.Context, req map[string]any) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stdin == nil {
		return nil, errors.New("worker is closed")
	}

	id := uuid.NewString()
	req["id"] = id
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				return nil, errors.New("worker closed its output stream")
			}
			var probe struct {
				ID any `json:"id"`
			}
			if err := json.Unmarshal(line, &probe); err != nil {
				c.log.Warn("dropping unparseable worker line", slog.String("error", err.Error()))
				continue
			}
			if got, ok := probe.ID.(string); !ok || got != id {
				c.log.Warn("dropping response with unexpected id", slog.Any("id", probe.ID))
				continue
			}
			return line, nil
		}
	}
}

// Close shuts the worker down by closing its stdin; EOF ends the serving
// loop. A worker that does not exit promptly is killed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stdin != nil {
		c.stdin.Close()
		c.stdin = nil
	}
	if c.cmd == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		c.cmd.Process.Kill()
		return <-done
	}
}

func (c *Client) kill() {
	if c.stdin != nil {
		c.stdin.Close()
		c.stdin = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}
}
