// Package config loads worker and host configuration: defaults first,
// then an optional YAML file, then SONUS_* environment overrides, then
// validation. Configuration is read once at startup and never re-read.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TTSConfig struct {
	Voice       string  `yaml:"voice"`
	ModelPath   string  `yaml:"model_path"`
	ConfigPath  string  `yaml:"config_path"`
	UseCUDA     bool    `yaml:"use_cuda"`
	SampleRate  int     `yaml:"sample_rate"`
	LengthScale float64 `yaml:"length_scale"`
	Volume      float64 `yaml:"volume"`
}

type STTConfig struct {
	Engine     string `yaml:"engine"` // mock, whispercpp
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Device     string `yaml:"device"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
}

type AuditConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type HostConfig struct {
	TTSCommand     string `yaml:"tts_command"`
	STTCommand     string `yaml:"stt_command"`
	ReadyTimeoutMS int    `yaml:"ready_timeout_ms"`
	PublishResults bool   `yaml:"publish_results"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	TTS         TTSConfig       `yaml:"tts"`
	STT         STTConfig       `yaml:"stt"`
	Audit       AuditConfig     `yaml:"audit"`
	Host        HostConfig      `yaml:"host"`
}

func Default() Config {
	return Config{
		ServiceName: "sonus",
		Environment: "development",
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
			// PrometheusBind stays empty by default: workers are spawned
			// in fleets and must not race for a fixed port.
		},
		Bus: BusConfig{
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		TTS: TTSConfig{
			Voice:       "tone",
			SampleRate:  22050,
			LengthScale: 0.85,
			Volume:      1.0,
		},
		STT: STTConfig{
			Engine:     "mock",
			Model:      "small",
			Device:     "cpu",
			SampleRate: 16000,
		},
		Audit: AuditConfig{
			Path:          "./data/sonus-audit.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRecords:    100000,
		},
		Host: HostConfig{
			TTSCommand:     "sonus-tts-worker",
			STTCommand:     "sonus-stt-worker",
			ReadyTimeoutMS: 30000,
		},
	}
}

// Load reads the config at path (empty path means defaults plus
// environment only), applies SONUS_* overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SONUS_SERVICE_NAME")
	overrideString(&cfg.Environment, "SONUS_ENVIRONMENT")
	overrideString(&cfg.Telemetry.LogLevel, "SONUS_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SONUS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SONUS_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SONUS_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "SONUS_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "SONUS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SONUS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SONUS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SONUS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SONUS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SONUS_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.TTS.Voice, "SONUS_TTS_VOICE")
	overrideString(&cfg.TTS.ModelPath, "SONUS_TTS_MODEL_PATH")
	overrideString(&cfg.TTS.ConfigPath, "SONUS_TTS_CONFIG_PATH")
	overrideBool(&cfg.TTS.UseCUDA, "SONUS_TTS_USE_CUDA")
	overrideInt(&cfg.TTS.SampleRate, "SONUS_TTS_SAMPLE_RATE")
	overrideFloat(&cfg.TTS.LengthScale, "SONUS_TTS_LENGTH_SCALE")
	overrideFloat(&cfg.TTS.Volume, "SONUS_TTS_VOLUME")
	overrideString(&cfg.STT.Engine, "SONUS_STT_ENGINE")
	overrideString(&cfg.STT.Model, "SONUS_STT_MODEL")
	overrideString(&cfg.STT.ModelPath, "SONUS_STT_MODEL_PATH")
	overrideString(&cfg.STT.Device, "SONUS_STT_DEVICE")
	overrideString(&cfg.STT.Language, "SONUS_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "SONUS_STT_SAMPLE_RATE")
	overrideString(&cfg.Audit.Path, "SONUS_AUDIT_PATH")
	overrideString(&cfg.Audit.RetentionMode, "SONUS_AUDIT_RETENTION_MODE")
	overrideInt(&cfg.Audit.RetentionDays, "SONUS_AUDIT_RETENTION_DAYS")
	overrideInt(&cfg.Audit.MaxRecords, "SONUS_AUDIT_MAX_RECORDS")
	overrideBool(&cfg.Audit.VacuumOnStart, "SONUS_AUDIT_VACUUM_ON_START")
	overrideString(&cfg.Host.TTSCommand, "SONUS_HOST_TTS_COMMAND")
	overrideString(&cfg.Host.STTCommand, "SONUS_HOST_STT_COMMAND")
	overrideInt(&cfg.Host.ReadyTimeoutMS, "SONUS_HOST_READY_TIMEOUT_MS")
	overrideBool(&cfg.Host.PublishResults, "SONUS_HOST_PUBLISH_RESULTS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.TTS.Voice == "" {
		return errors.New("tts.voice must not be empty")
	}
	if cfg.TTS.Voice != "tone" && cfg.TTS.ModelPath == "" {
		return fmt.Errorf("tts.model_path must be set for voice %q", cfg.TTS.Voice)
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.LengthScale <= 0 {
		return errors.New("tts.length_scale must be positive")
	}
	if cfg.TTS.Volume <= 0 {
		return errors.New("tts.volume must be positive")
	}
	switch cfg.STT.Engine {
	case "mock", "whispercpp":
	default:
		return errors.New("stt.engine must be one of mock|whispercpp")
	}
	if cfg.STT.Engine == "whispercpp" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when engine=whispercpp")
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	switch cfg.Audit.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("audit.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Audit.RetentionMode == "persistent" && cfg.Audit.Path == "" {
		return errors.New("audit.path must not be empty when retention is persistent")
	}
	if cfg.Audit.RetentionDays < 0 {
		return errors.New("audit.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when the bus is enabled")
	}
	if cfg.Host.TTSCommand == "" || cfg.Host.STTCommand == "" {
		return errors.New("host.tts_command and host.stt_command must not be empty")
	}
	if cfg.Host.ReadyTimeoutMS <= 0 {
		return errors.New("host.ready_timeout_ms must be positive")
	}
	return nil
}
