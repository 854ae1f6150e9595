package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/realtime-ai/keyword-spotter/pkg/gate"
	"github.com/realtime-ai/keyword-spotter/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	sc, err := cfg.Session()
	require.NoError(t, err)
	assert.Equal(t, session.DefaultConfig(), sc)
	assert.Equal(t, "none", cfg.Trace.Exporter)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
	assert.Equal(t, gate.DefaultOffsetDB, cfg.Gate.OffsetDB)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "kwspot.yaml", `
log_level: debug
gate:
  strategy: Silero
  speech_threshold: 0.6
ranking:
  top_k: 5
  confidence_floor: 0.01
audio:
  hop_size: 16000
  retry_backoff: 50ms
`)
	cfg, err := Load(New(), path)
	require.NoError(t, err)

	sc, err := cfg.Session()
	require.NoError(t, err)
	assert.Equal(t, gate.StrategyVoiceActivity, sc.Strategy)
	assert.Equal(t, 5, sc.TopK)
	assert.Equal(t, float32(0.01), sc.ConfidenceFloor)
	assert.Equal(t, 16000, sc.HopSize)
	assert.Equal(t, 50*time.Millisecond, sc.RetryBackoff)
	assert.Equal(t, float32(0.6), cfg.Gate.SpeechThreshold)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, 50.0, sc.DBThreshold, "unset keys keep defaults")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("KWSPOT_GATE_THRESHOLD_DB", "42.5")
	t.Setenv("KWSPOT_RANKING_TOP_K", "1")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 42.5, cfg.Gate.ThresholdDB)
	assert.Equal(t, 1, cfg.Ranking.TopK)
}

func TestDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "KWSPOT_PATHS_LOG=/tmp/detections.json\n")
	t.Setenv("KWSPOT_PATHS_LOG", "")
	os.Unsetenv("KWSPOT_PATHS_LOG")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/detections.json", cfg.Paths.Log)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"hop beyond window", "audio:\n  hop_size: 20000\n"},
		{"zero topK", "ranking:\n  top_k: 0\n"},
		{"unknown strategy", "gate:\n  strategy: loudness\n"},
		{"wrong sample rate", "audio:\n  sample_rate: 44100\n"},
		{"bad log level", "log_level: chatty\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeFile(t, "bad.yaml", tt.yaml))
			assert.ErrorIs(t, err, session.ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestYAMLDump(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "gate")
	assert.Contains(t, decoded, "ranking")
	assert.Equal(t, "energy", decoded["gate"].(map[string]interface{})["strategy"])
}
