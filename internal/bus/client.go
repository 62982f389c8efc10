// Package bus publishes speech results onto NATS so other services can
// react to finished synthesis and transcription without polling the host.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sonuslabs/sonus-core/internal/config"
)

const (
	SubjectSynthesisDone   = "speech.synthesis.done"
	SubjectTranscriptFinal = "speech.transcript.final"
)

// SynthesisAnnouncement is published after a synthesis request completes.
type SynthesisAnnouncement struct {
	RequestID  string    `json:"request_id"`
	Voice      string    `json:"voice"`
	SampleRate int       `json:"sample_rate"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// TranscriptAnnouncement is published after a transcription completes.
type TranscriptAnnouncement struct {
	RequestID  string    `json:"request_id"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client wraps a NATS connection with minimal helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("sonus-host"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishSynthesis announces a finished synthesis on the bus.
func (c *Client) PublishSynthesis(ann SynthesisAnnouncement) error {
	if c == nil || c.conn == nil {
		return nil
	}
	if ann.Timestamp.IsZero() {
		ann.Timestamp = time.Now().UTC()
	}
	return c.publish(SubjectSynthesisDone, ann)
}

// PublishTranscript announces a finished transcription on the bus.
func (c *Client) PublishTranscript(ann TranscriptAnnouncement) error {
	if c == nil || c.conn == nil {
		return nil
	}
	if ann.Timestamp.IsZero() {
		ann.Timestamp = time.Now().UTC()
	}
	return c.publish(SubjectTranscriptFinal, ann)
}

func (c *Client) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
