package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	MQTTBroker   string
	MQTTClientID string
	TopicPrefix  string

	// Interval měření (např. "60s", "1m")
	Interval time.Duration
	LogLevel string
}

// LoadConfig: ENV jako výchozí hodnoty, příkazová řádka je přepisuje.
func LoadConfig(args []string) (Config, error) {
	interval, err := time.ParseDuration(getEnv("MONITOR_INTERVAL", "60s"))
	if err != nil || interval <= 0 {
		interval = 60 * time.Second
	}

	cfg := Config{
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://mosquitto:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "system-monitor"),
		TopicPrefix:  getEnv("TOPIC_PREFIX", "patrion"),
		Interval:     interval,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	fs := pflag.NewFlagSet("system-monitor", pflag.ContinueOnError)
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "adresa MQTT brokeru")
	fs.StringVar(&cfg.TopicPrefix, "topic-prefix", cfg.TopicPrefix, "kořen MQTT topiců")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "interval měření")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("interval musí být kladný, je %s", cfg.Interval)
	}
	return cfg, nil
}

// HealthTopic je topic, na který monitor publikuje, např. "patrion/system/health".
func (c Config) HealthTopic() string {
	return strings.TrimSuffix(c.TopicPrefix, "/") + "/system/health"
}

func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
