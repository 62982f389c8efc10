package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sonuslabs/sonus-core/internal/audit"
	"github.com/sonuslabs/sonus-core/internal/bus"
	"github.com/sonuslabs/sonus-core/internal/config"
	"github.com/sonuslabs/sonus-core/internal/protocol"
)

// Service fronts the worker fleet: it lazily spawns the synthesis and
// recognition workers, audits every request, and announces finished
// results on the bus when configured to.
type Service struct {
	cfg   config.HostConfig
	tts   *LazyWorker
	stt   *LazyWorker
	audit *audit.Store
	bus   *bus.Client
	log   *slog.Logger
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithAudit attaches a request audit store.
func WithAudit(store *audit.Store) ServiceOption {
	return func(s *Service) { s.audit = store }
}

// WithBus attaches a bus client for result announcements.
func WithBus(client *bus.Client) ServiceOption {
	return func(s *Service) { s.bus = client }
}

func NewService(cfg config.Config, log *slog.Logger, opts ...ServiceOption) *Service {
	readyTimeout := time.Duration(cfg.Host.ReadyTimeoutMS) * time.Millisecond
	s := &Service{
		cfg: cfg.Host,
		log: log,
		tts: NewLazyWorker(func(ctx context.Context) (*Client, error) {
			return Spawn(ctx, SpawnOptions{
				Command:      cfg.Host.TTSCommand,
				ReadyTimeout: readyTimeout,
				Log:          log.With(slog.String("worker", "tts")),
			})
		}),
		stt: NewLazyWorker(func(ctx context.Context) (*Client, error) {
			return Spawn(ctx, SpawnOptions{
				Command:      cfg.Host.STTCommand,
				ReadyTimeout: readyTimeout,
				Log:          log.With(slog.String("worker", "stt")),
			})
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize renders text through the synthesis worker.
func (s *Service) Synthesize(ctx context.Context, text string, opts SynthesisOptions) (protocol.SynthesizeResult, error) {
	requestID := uuid.NewString()
	start := time.Now()

	client, err := s.tts.Get(ctx)
	if err != nil {
		s.record(ctx, requestID, "tts", protocol.CommandSynthesize, start, err)
		return protocol.SynthesizeResult{}, err
	}

	result, err := client.Synthesize(ctx, text, opts)
	s.record(ctx, requestID, "tts", protocol.CommandSynthesize, start, err)
	if err != nil {
		return protocol.SynthesizeResult{}, err
	}

	if s.cfg.PublishResults && s.bus.Healthy() {
		ann := bus.SynthesisAnnouncement{
			RequestID:  requestID,
			Voice:      client.Ready().Voice,
			SampleRate: result.SampleRate,
			DurationMS: result.DurationMS,
		}
		if err := s.bus.PublishSynthesis(ann); err != nil {
			s.log.Warn("failed to announce synthesis", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

// Transcribe recognizes speech through the recognition worker.
func (s *Service) Transcribe(ctx context.Context, wavData []byte, language string) (protocol.TranscribeResult, error) {
	requestID := uuid.NewString()
	start := time.Now()

	client, err := s.stt.Get(ctx)
	if err != nil {
		s.record(ctx, requestID, "stt", protocol.CommandTranscribe, start, err)
		return protocol.TranscribeResult{}, err
	}

	result, err := client.Transcribe(ctx, wavData, language)
	s.record(ctx, requestID, "stt", protocol.CommandTranscribe, start, err)
	if err != nil {
		return protocol.TranscribeResult{}, err
	}

	if s.cfg.PublishResults && s.bus.Healthy() {
		ann := bus.TranscriptAnnouncement{
			RequestID:  requestID,
			Text:       result.Text,
			Language:   result.Language,
			Confidence: result.Confidence,
		}
		if err := s.bus.PublishTranscript(ann); err != nil {
			s.log.Warn("failed to announce transcript", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, requestID, worker, command string, start time.Time, cause error) {
	if s.audit == nil {
		return
	}
	rec := audit.Record{
		RequestID:  requestID,
		Worker:     worker,
		Command:    command,
		Success:    cause == nil,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.log.Warn("failed to audit request", slog.String("error", err.Error()))
	}
}

// Close shuts down whichever workers were spawned.
func (s *Service) Close() error {
	return errors.Join(s.tts.Close(), s.stt.Close())
}
