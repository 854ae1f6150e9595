// Package config loads kwspot settings from defaults, an optional YAML file,
// a .env file and KWSPOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/gate"
	"github.com/realtime-ai/keyword-spotter/pkg/rank"
	"github.com/realtime-ai/keyword-spotter/pkg/session"
	"github.com/realtime-ai/keyword-spotter/pkg/trace"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. KWSPOT_GATE_STRATEGY.
const EnvPrefix = "KWSPOT"

type Audio struct {
	SampleRate     int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	WindowSize     int           `mapstructure:"window_size" yaml:"window_size"`
	HopSize        int           `mapstructure:"hop_size" yaml:"hop_size"`
	ReadChunk      int           `mapstructure:"read_chunk" yaml:"read_chunk"`
	PeriodMs       int           `mapstructure:"period_ms" yaml:"period_ms"`
	QueueMs        int           `mapstructure:"queue_ms" yaml:"queue_ms"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	MaxReadRetries int           `mapstructure:"max_read_retries" yaml:"max_read_retries"`
}

type Gate struct {
	// Strategy is "energy" or "voice-activity" ("dB" and "Silero" are accepted).
	Strategy        string  `mapstructure:"strategy" yaml:"strategy"`
	ThresholdDB     float64 `mapstructure:"threshold_db" yaml:"threshold_db"`
	OffsetDB        float64 `mapstructure:"offset_db" yaml:"offset_db"`
	VADModel        string  `mapstructure:"vad_model" yaml:"vad_model"`
	SpeechThreshold float32 `mapstructure:"speech_threshold" yaml:"speech_threshold"`
}

type Model struct {
	Path        string `mapstructure:"path" yaml:"path"`
	Labels      string `mapstructure:"labels" yaml:"labels"`
	LibraryPath string `mapstructure:"library_path" yaml:"library_path"`
	Threads     int    `mapstructure:"threads" yaml:"threads"`
	NumMFCC     int    `mapstructure:"num_mfcc" yaml:"num_mfcc"`
}

type Ranking struct {
	TopK            int     `mapstructure:"top_k" yaml:"top_k"`
	ConfidenceFloor float32 `mapstructure:"confidence_floor" yaml:"confidence_floor"`
}

type Paths struct {
	// Log is the JSON detection log.
	Log string `mapstructure:"log" yaml:"log"`
	// Dump, when set, receives every gated-positive window as a WAV file.
	Dump string `mapstructure:"dump" yaml:"dump"`
}

type Server struct {
	// Addr serves /metrics and /ws. Empty disables the HTTP listener.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Config is the full kwspot configuration.
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level"`
	Audio    Audio        `mapstructure:"audio" yaml:"audio"`
	Gate     Gate         `mapstructure:"gate" yaml:"gate"`
	Model    Model        `mapstructure:"model" yaml:"model"`
	Ranking  Ranking      `mapstructure:"ranking" yaml:"ranking"`
	Paths    Paths        `mapstructure:"paths" yaml:"paths"`
	Server   Server       `mapstructure:"server" yaml:"server"`
	Trace    trace.Config `mapstructure:"trace" yaml:"trace"`
}

// SetDefaults registers every default on v so that environment variables
// can override keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	sc := session.DefaultConfig()
	tc := trace.DefaultConfig()

	v.SetDefault("log_level", "info")

	v.SetDefault("audio.sample_rate", sc.SampleRate)
	v.SetDefault("audio.window_size", sc.WindowSize)
	v.SetDefault("audio.hop_size", sc.HopSize)
	v.SetDefault("audio.read_chunk", sc.ReadChunk)
	v.SetDefault("audio.period_ms", 100)
	v.SetDefault("audio.queue_ms", 2000)
	v.SetDefault("audio.retry_backoff", sc.RetryBackoff)
	v.SetDefault("audio.max_read_retries", sc.MaxReadRetries)

	v.SetDefault("gate.strategy", string(sc.Strategy))
	v.SetDefault("gate.threshold_db", sc.DBThreshold)
	v.SetDefault("gate.offset_db", gate.DefaultOffsetDB)
	v.SetDefault("gate.vad_model", "models/silero_vad.onnx")
	v.SetDefault("gate.speech_threshold", gate.DefaultSpeechThreshold)

	v.SetDefault("model.path", "models/keywords.onnx")
	v.SetDefault("model.labels", "models/labels.txt")
	v.SetDefault("model.library_path", "")
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.num_mfcc", 13)

	v.SetDefault("ranking.top_k", rank.DefaultTopK)
	v.SetDefault("ranking.confidence_floor", rank.DefaultConfidenceFloor)

	v.SetDefault("paths.log", "kwspot_log.json")
	v.SetDefault("paths.dump", "")

	v.SetDefault("server.addr", "")

	v.SetDefault("trace.service_name", tc.ServiceName)
	v.SetDefault("trace.service_version", tc.ServiceVersion)
	v.SetDefault("trace.environment", tc.Environment)
	v.SetDefault("trace.exporter", tc.Exporter)
	v.SetDefault("trace.otlp_endpoint", tc.OTLPEndpoint)
	v.SetDefault("trace.sampling_rate", tc.SamplingRate)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads the given .env files into the process environment. A
// missing file is not an error.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Session(); err != nil {
		return nil, err
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Session converts c to a validated session configuration.
func (c *Config) Session() (session.Config, error) {
	strategy, err := gate.ParseStrategy(c.Gate.Strategy)
	if err != nil {
		return session.Config{}, fmt.Errorf("%w: %w", session.ErrInvalidConfig, err)
	}
	sc := session.Config{
		SampleRate:      c.Audio.SampleRate,
		WindowSize:      c.Audio.WindowSize,
		HopSize:         c.Audio.HopSize,
		DBThreshold:     c.Gate.ThresholdDB,
		ConfidenceFloor: c.Ranking.ConfidenceFloor,
		TopK:            c.Ranking.TopK,
		Strategy:        strategy,
		ReadChunk:       c.Audio.ReadChunk,
		RetryBackoff:    c.Audio.RetryBackoff,
		MaxReadRetries:  c.Audio.MaxReadRetries,
	}
	if sc.SampleRate != audio.SampleRate {
		return session.Config{}, fmt.Errorf("%w: sample rate must be %d Hz", session.ErrInvalidConfig, audio.SampleRate)
	}
	if err := sc.Validate(); err != nil {
		return session.Config{}, err
	}
	return sc, nil
}

// Level returns the configured logrus level, info when unparsable.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
