// Package ingest přijímá měření ze zařízení: validace, uložení a oznámení hubu.
//
// Odmítnutá zpráva nikdy neshodí proces. Skončí v logu, v diagnostickém souboru
// a v Result se Success=false.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/diaglog"
	"tenant-telemetry/internal/events"
	"tenant-telemetry/internal/metrics"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store"
)

// SensorLookup je čtecí pohled na registr (v provozu SensorCache).
type SensorLookup interface {
	ByExternalID(ctx context.Context, sensorKey string) (model.Sensor, error)
}

// Publisher přijímá událost o uloženém měření. Nesmí blokovat.
type Publisher interface {
	Publish(ev events.ReadingReceived)
}

// DiagSink přijímá záznamy o chybných zprávách.
type DiagSink interface {
	Append(e diaglog.Entry)
}

// Result je odpověď na jednu zprávu.
type Result struct {
	Success  bool   `json:"success"`
	ID       string `json:"id,omitempty"`
	SensorID string `json:"sensor_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Ingestor zpracovává zprávy sekvenčně v rámci jednoho volání.
type Ingestor struct {
	readings store.ReadingStore
	sensors  SensorLookup
	bus      Publisher
	diag     DiagSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestor(readings store.ReadingStore, sensors SensorLookup, bus Publisher, diag DiagSink, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		readings: readings,
		sensors:  sensors,
		bus:      bus,
		diag:     diag,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest zvaliduje a uloží jednu zprávu z daného topicu.
func (in *Ingestor) Ingest(ctx context.Context, topic string, payload []byte) Result {
	rd, err := Parse(payload)
	if err != nil {
		in.logger.Warn("Zpráva odmítnuta", "topic", topic, "error", err)
		in.metrics.IngestTotal.WithLabelValues(metrics.ResultRejected).Inc()
		in.reject(topic, payload, err)
		return Result{Error: err.Error()}
	}

	// Registrace senzoru výsledek neovlivňuje, jen ji zalogujeme.
	in.describeSensor(ctx, rd.SensorID)

	saved, err := in.readings.Save(ctx, rd)
	if err != nil {
		in.logger.Error("Uložení měření selhalo", "sensor_id", rd.SensorID, "error", err)
		in.metrics.IngestTotal.WithLabelValues(metrics.ResultFailed).Inc()
		in.reject(topic, payload, err)
		return Result{SensorID: rd.SensorID, Error: err.Error()}
	}

	in.metrics.IngestTotal.WithLabelValues(metrics.ResultAccepted).Inc()
	in.logger.Debug("Měření uloženo", "sensor_id", saved.SensorID, "id", saved.ID)
	in.bus.Publish(events.ReadingReceived{Reading: saved})

	return Result{Success: true, ID: saved.ID, SensorID: saved.SensorID}
}

func (in *Ingestor) describeSensor(ctx context.Context, sensorKey string) {
	sensor, err := in.sensors.ByExternalID(ctx, sensorKey)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		in.logger.Warn("Data od neregistrovaného senzoru, ukládám i tak", "sensor_id", sensorKey)
	case err != nil:
		in.logger.Warn("Registr senzorů nedostupný", "sensor_id", sensorKey, "error", err)
	case !sensor.IsActive:
		in.logger.Warn("Senzor je neaktivní, data se přesto uloží", "sensor_id", sensorKey, "company_id", sensor.CompanyID)
	default:
		in.logger.Debug("Data od registrovaného senzoru", "sensor_id", sensorKey, "company_id", sensor.CompanyID)
	}
}

func (in *Ingestor) reject(topic string, payload []byte, reason error) {
	in.diag.Append(diaglog.Entry{
		Timestamp: in.now(),
		Topic:     topic,
		Data:      diaglog.Payload(payload),
		Error:     reason.Error(),
	})
}
