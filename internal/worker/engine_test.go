package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// serve runs an engine over the given input and returns each output line
// decoded as a generic JSON object.
func serve(t *testing.T, input string, register func(*Engine)) []map[string]any {
	t.Helper()
	var out bytes.Buffer
	e := New(strings.NewReader(input), &out, newLogger())
	if register != nil {
		register(e)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if raw == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			t.Fatalf("output line %q is not JSON: %v", raw, err)
		}
		lines = append(lines, obj)
	}
	return lines
}

func echoHandler(ctx context.Context, raw []byte) (any, error) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return map[string]any{"echo": req.Text}, nil
}

func TestSuccessResponseFlattensPayload(t *testing.T) {
	lines := serve(t, `{"id":"r1","command":"echo","text":"hi"}`+"\n", func(e *Engine) {
		e.Register("echo", echoHandler)
	})
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	resp := lines[0]
	if resp["id"] != "r1" {
		t.Errorf("id = %v", resp["id"])
	}
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	if resp["echo"] != "hi" {
		t.Errorf("echo = %v", resp["echo"])
	}
	if _, ok := resp["error"]; ok {
		t.Error("success response must not carry an error field")
	}
}

func TestIDEchoedVerbatim(t *testing.T) {
	input := `{"id":"abc","command":"echo","text":"a"}
{"id":17,"command":"echo","text":"b"}
{"id":{"nested":true},"command":"echo","text":"c"}
{"command":"echo","text":"d"}
`
	lines := serve(t, input, func(e *Engine) {
		e.Register("echo", echoHandler)
	})
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0]["id"] != "abc" {
		t.Errorf("string id = %v", lines[0]["id"])
	}
	if lines[1]["id"] != float64(17) {
		t.Errorf("numeric id = %v", lines[1]["id"])
	}
	nested, ok := lines[2]["id"].(map[string]any)
	if !ok || nested["nested"] != true {
		t.Errorf("object id = %v", lines[2]["id"])
	}
	if id, present := lines[3]["id"]; !present || id != nil {
		t.Errorf("absent id should be echoed as null, got %v (present=%v)", id, present)
	}
}

func TestParseErrorProducesFailureLine(t *testing.T) {
	lines := serve(t, "this is not json\n", nil)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	resp := lines[0]
	if resp["success"] != false {
		t.Errorf("success = %v", resp["success"])
	}
	if resp["id"] != nil {
		t.Errorf("id = %v, want null", resp["id"])
	}
	if errText, _ := resp["error"].(string); errText == "" {
		t.Error("expected an error message")
	}
}

func TestUnknownCommand(t *testing.T) {
	lines := serve(t, `{"id":1,"command":"hum"}`+"\n", nil)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["error"] != "Unsupported command: hum" {
		t.Errorf("error = %v", lines[0]["error"])
	}
	if lines[0]["id"] != float64(1) {
		t.Errorf("id = %v", lines[0]["id"])
	}
}

func TestHandlerErrorKeepsServing(t *testing.T) {
	input := `{"id":1,"command":"fail"}
{"id":2,"command":"echo","text":"still here"}
`
	lines := serve(t, input, func(e *Engine) {
		e.Register("fail", func(ctx context.Context, raw []byte) (any, error) {
			return nil, errors.New("deliberate failure")
		})
		e.Register("echo", echoHandler)
	})
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["success"] != false || lines[0]["error"] != "deliberate failure" {
		t.Errorf("failure line = %v", lines[0])
	}
	if lines[1]["success"] != true || lines[1]["echo"] != "still here" {
		t.Errorf("survivor line = %v", lines[1])
	}
}

func TestHandlerPanicKeepsServing(t *testing.T) {
	input := `{"id":1,"command":"boom"}
{"id":2,"command":"echo","text":"ok"}
`
	lines := serve(t, input, func(e *Engine) {
		e.Register("boom", func(ctx context.Context, raw []byte) (any, error) {
			panic("kaboom")
		})
		e.Register("echo", echoHandler)
	})
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["success"] != false {
		t.Errorf("panic line = %v", lines[0])
	}
	if errText, _ := lines[0]["error"].(string); !strings.Contains(errText, "kaboom") {
		t.Errorf("error = %q", errText)
	}
	if lines[1]["success"] != true {
		t.Errorf("survivor line = %v", lines[1])
	}
}

func TestBlankLinesSkipped(t *testing.T) {
	input := "\n   \n" + `{"id":1,"command":"echo","text":"x"}` + "\n\n"
	lines := serve(t, input, func(e *Engine) {
		e.Register("echo", echoHandler)
	})
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
}

func TestEmitReadyAndStartupError(t *testing.T) {
	var out bytes.Buffer
	e := New(strings.NewReader(""), &out, newLogger())

	if err := e.EmitReady(42, map[string]any{"voice": "tone", "sample_rate": 22050}); err != nil {
		t.Fatalf("emit ready: %v", err)
	}
	if err := e.EmitStartupError(errors.New("model file missing")); err != nil {
		t.Fatalf("emit startup error: %v", err)
	}

	raw := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(raw) != 2 {
		t.Fatalf("got %d lines, want 2", len(raw))
	}

	var ready map[string]any
	if err := json.Unmarshal([]byte(raw[0]), &ready); err != nil {
		t.Fatalf("parse ready: %v", err)
	}
	if ready["event"] != "ready" || ready["success"] != true {
		t.Errorf("ready line = %v", ready)
	}
	if ready["startup_ms"] != float64(42) || ready["voice"] != "tone" {
		t.Errorf("ready metadata = %v", ready)
	}

	var failed map[string]any
	if err := json.Unmarshal([]byte(raw[1]), &failed); err != nil {
		t.Fatalf("parse error event: %v", err)
	}
	if failed["event"] != "error" || failed["success"] != false {
		t.Errorf("error line = %v", failed)
	}
	if failed["error"] != "model file missing" {
		t.Errorf("error text = %v", failed["error"])
	}
}

func TestLargeRequestLine(t *testing.T) {
	// Well past bufio's default 64 KiB token limit.
	payload := strings.Repeat("a", 1<<20)
	input := `{"id":1,"command":"echo","text":"` + payload + `"}` + "\n"
	lines := serve(t, input, func(e *Engine) {
		e.Register("echo", echoHandler)
	})
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["success"] != true {
		t.Fatalf("large line rejected: %v", lines[0])
	}
	if echo, _ := lines[0]["echo"].(string); len(echo) != len(payload) {
		t.Errorf("echo length = %d", len(echo))
	}
}
