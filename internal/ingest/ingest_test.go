package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/diaglog"
	"tenant-telemetry/internal/events"
	"tenant-telemetry/internal/metrics"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store/memory"
)

type recordingDiag struct {
	mu      sync.Mutex
	entries []diaglog.Entry
}

func (d *recordingDiag) Append(e diaglog.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, e)
}

type failingReadings struct{ *memory.Readings }

func (failingReadings) Save(context.Context, model.Reading) (model.Reading, error) {
	return model.Reading{}, apperr.Transient("insert reading", errors.New("connection refused"))
}

type harness struct {
	ingestor *Ingestor
	readings *memory.Readings
	sensors  *memory.Sensors
	bus      *events.Bus
	diag     *recordingDiag
	metrics  *metrics.Metrics
	logs     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sensors, readings, _, _ := memory.New()
	h := &harness{
		readings: readings,
		sensors:  sensors,
		bus:      events.NewBus(16),
		diag:     &recordingDiag{},
		metrics:  metrics.New(),
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.ingestor = NewIngestor(readings, sensors, h.bus, h.diag, h.metrics, logger)
	h.ingestor.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestIngest_MinimalReading(t *testing.T) {
	h := newHarness(t)

	res := h.ingestor.Ingest(context.Background(), "patrion/sensors/s1", []byte(`{"sensor_id":"s1","timestamp":1700000000}`))

	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "s1", res.SensorID)

	stored, err := h.readings.Latest(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].Temperature)
	assert.Nil(t, stored[0].Humidity)
	assert.Nil(t, stored[0].AdditionalData)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), stored[0].Timestamp)

	ev := <-h.bus.Events()
	assert.Equal(t, res.ID, ev.Reading.ID)
	assert.Empty(t, h.diag.entries)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IngestTotal.WithLabelValues(metrics.ResultAccepted)))
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty sensor_id", `{"sensor_id":"","timestamp":1700000000}`},
		{"whitespace sensor_id", `{"sensor_id":"   ","timestamp":1700000000}`},
		{"numeric sensor_id", `{"sensor_id":5,"timestamp":1700000000}`},
		{"missing timestamp", `{"sensor_id":"s1"}`},
		{"null timestamp", `{"sensor_id":"s1","timestamp":null}`},
		{"non-numeric timestamp", `{"sensor_id":"s1","timestamp":"yesterday"}`},
		{"non-numeric temperature", `{"sensor_id":"s1","timestamp":1700000000,"temperature":"warm"}`},
		{"bool humidity", `{"sensor_id":"s1","timestamp":1700000000,"humidity":true}`},
		{"array payload", `[1,2,3]`},
		{"not json", `hello`},
		{"json null", `null`},
		{"timestamp far future", `{"sensor_id":"s1","timestamp":1e30}`},
		{"timestamp far past", `{"sensor_id":"s1","timestamp":-1e30}`},
		{"timestamp huge string", `{"sensor_id":"s1","timestamp":"1e300"}`},
		{"timestamp beyond int64 millis", `{"sensor_id":"s1","timestamp":9.3e15}`},
		{"timestamp after year 9999", `{"sensor_id":"s1","timestamp":253402300800}`},
		{"timestamp with underscores", `{"sensor_id":"s1","timestamp":"1_700_000_000"}`},
		{"temperature with underscores", `{"sensor_id":"s1","timestamp":1700000000,"temperature":"2_1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			res := h.ingestor.Ingest(context.Background(), "patrion/sensors/s1", []byte(tt.payload))

			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
			assert.Zero(t, h.readings.Count(), "store must stay untouched")
			assert.Zero(t, h.bus.Len())
			require.Len(t, h.diag.entries, 1)
			assert.Equal(t, "patrion/sensors/s1", h.diag.entries[0].Topic)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IngestTotal.WithLabelValues(metrics.ResultRejected)))
		})
	}
}

func TestIngest_NumericStringsAndExtras(t *testing.T) {
	h := newHarness(t)

	res := h.ingestor.Ingest(context.Background(), "patrion/sensors/s1",
		[]byte(`{"sensor_id":"s1","timestamp":"1700000000.25","temperature":"21.5","humidity":null,"battery":87,"fw":"1.2"}`))
	require.True(t, res.Success, res.Error)

	stored, err := h.readings.Latest(context.Background(), "s1", 1)
	require.NoError(t, err)
	rd := stored[0]
	require.NotNil(t, rd.Temperature)
	assert.Equal(t, 21.5, *rd.Temperature)
	assert.Nil(t, rd.Humidity)
	assert.Equal(t, map[string]any{"battery": 87.0, "fw": "1.2"}, rd.AdditionalData)
	assert.Equal(t, time.UnixMilli(1700000000250).UTC(), rd.Timestamp)
}

func TestIngest_UnknownSensorIsStillPersisted(t *testing.T) {
	h := newHarness(t)
	_, err := h.sensors.Put(model.Sensor{SensorID: "known", CompanyID: "c1", IsActive: false})
	require.NoError(t, err)

	res := h.ingestor.Ingest(context.Background(), "patrion/sensors/ghost", []byte(`{"sensor_id":"ghost","timestamp":1}`))
	require.True(t, res.Success)
	assert.Contains(t, h.logs.String(), "neregistrovaného senzoru")

	res = h.ingestor.Ingest(context.Background(), "patrion/sensors/known", []byte(`{"sensor_id":"known","timestamp":1}`))
	require.True(t, res.Success)
	assert.Contains(t, h.logs.String(), "neaktivní")

	assert.Equal(t, 2, h.readings.Count())
}

func TestIngest_PersistFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.ingestor.readings = failingReadings{h.readings}

	res := h.ingestor.Ingest(context.Background(), "patrion/sensors/s1", []byte(`{"sensor_id":"s1","timestamp":1}`))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")
	require.Len(t, h.diag.entries, 1)
	assert.Contains(t, h.diag.entries[0].Error, "storage unavailable")
	assert.Zero(t, h.bus.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IngestTotal.WithLabelValues(metrics.ResultFailed)))
}

func TestParse_ErrorsAreValidation(t *testing.T) {
	_, err := Parse([]byte(`{"sensor_id":"s1","timestamp":"NaN"}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = Parse([]byte(`{"sensor_id":"s1","timestamp":1} trailing`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRouter(t *testing.T) {
	h := newHarness(t)
	r := NewRouter("", h.ingestor, slog.New(slog.NewJSONHandler(h.logs, nil)))
	ctx := context.Background()

	assert.Equal(t, []string{"patrion/sensors/+", "patrion/companies/+/+", "patrion/system/+"}, r.Topics())

	res := r.Handle(ctx, "patrion/sensors/s1", []byte(`{"sensor_id":"s1","timestamp":1}`))
	require.NotNil(t, res)
	assert.True(t, res.Success)

	assert.Nil(t, r.Handle(ctx, "patrion/companies/c1/updated", []byte(`{}`)))
	assert.Nil(t, r.Handle(ctx, "patrion/system/health", []byte(`{"cpu":1}`)))
	assert.Nil(t, r.Handle(ctx, "other/sensors/s1", []byte(`{"sensor_id":"s1","timestamp":1}`)))

	assert.Equal(t, 1, h.readings.Count())
	assert.Contains(t, h.logs.String(), "Firemní událost")
}

func TestParse_TimestampBounds(t *testing.T) {
	rd, err := Parse([]byte(`{"sensor_id":"s1","timestamp":253402300799}`))
	require.NoError(t, err)
	assert.Equal(t, 9999, rd.Timestamp.Year())

	rd, err = Parse([]byte(`{"sensor_id":"s1","timestamp":-62135596800}`))
	require.NoError(t, err)
	assert.Equal(t, 1, rd.Timestamp.Year())

	_, err = Parse([]byte(`{"sensor_id":"s1","timestamp":-62135596801}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
