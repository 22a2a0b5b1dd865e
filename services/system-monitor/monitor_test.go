package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("TOPIC_PREFIX", "acme")
	t.Setenv("MONITOR_INTERVAL", "oops")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "acme/system/health", cfg.HealthTopic())
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := LoadConfig([]string{"--interval", "5s", "--topic-prefix", "edge/", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, "edge/system/health", cfg.HealthTopic())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	_, err = LoadConfig([]string{"--interval", "0s"})
	assert.Error(t, err)
}

// doneToken je okamžitě dokončený mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return doneToken{err: f.err}
}

func TestReporter_Report(t *testing.T) {
	pub := &fakePublisher{}
	r := &reporter{
		client: pub,
		topic:  "patrion/system/health",
		collect: func(*slog.Logger) (*SystemStats, error) {
			return &SystemStats{Host: "edge-1", CPULoad: 3}, nil
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	require.NoError(t, r.report())
	require.Len(t, pub.topics, 1)
	assert.Equal(t, "patrion/system/health", pub.topics[0])

	var m map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &m))
	assert.Equal(t, "edge-1", m["host"])

	pub.err = errors.New("broker pryč")
	assert.ErrorContains(t, r.report(), "broker pryč")
}

func TestSystemStats_Payload(t *testing.T) {
	s := &SystemStats{
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Host:       "edge-1",
		CPULoad:    12.5,
		RamTotalMB: 1024,
	}
	raw, err := s.Payload()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "edge-1", m["host"])
	assert.Equal(t, 12.5, m["cpuLoad"])
	assert.Equal(t, 1024.0, m["ramTotalMb"])
}

func TestMatchesTarget(t *testing.T) {
	assert.True(t, matchesTarget("telemetry-server"))
	assert.True(t, matchesTarget("valkey-server"))
	assert.False(t, matchesTarget("bash"))
	assert.Equal(t, 1.0, bytesToMB(1024*1024))
}
