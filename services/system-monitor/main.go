package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publisher je ta část MQTT klienta, kterou reporter potřebuje.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// reporter změří hostitele a pošle snímek na health topic.
type reporter struct {
	client  publisher
	topic   string
	collect func(*slog.Logger) (*SystemStats, error)
	logger  *slog.Logger
}

func (r *reporter) report() error {
	stats, err := r.collect(r.logger)
	if err != nil {
		return fmt.Errorf("měření: %w", err)
	}
	payload, err := stats.Payload()
	if err != nil {
		return fmt.Errorf("serializace snímku: %w", err)
	}

	token := r.client.Publish(r.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publikace na %s nepotvrzena včas", r.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publikace: %w", err)
	}
	r.logger.Debug("Snímek odeslán", "cpu", stats.CPULoad, "ram_used_mb", stats.RamUsedMB)
	return nil
}

// run reportuje hned po startu a pak v každém tiku, dokud ctx neskončí.
func (r *reporter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.report(); err != nil {
			r.logger.Error("Snímek neodeslán", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("Neplatná konfigurace", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	logger.Info("Startuji System Monitor", "interval", cfg.Interval, "topic", cfg.HealthTopic())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("Selhalo připojení k MQTT", "error", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	r := &reporter{client: client, topic: cfg.HealthTopic(), collect: CollectStats, logger: logger}
	r.run(ctx, cfg.Interval)

	logger.Info("Přijat signál ukončení, vypínám...")
}
