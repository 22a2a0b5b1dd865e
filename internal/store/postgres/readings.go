package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-telemetry/internal/model"
)

// Readings je "cold storage" měření, hypertable-friendly tabulka sensor_data.
type Readings struct {
	db *pgxpool.Pool
}

const readingColumns = `id, sensor_id, timestamp, temperature, humidity, additional_data, created_at`

func (r *Readings) Save(ctx context.Context, rd model.Reading) (model.Reading, error) {
	if rd.ID == "" {
		rd.ID = uuid.NewString()
	}

	query := `
		INSERT INTO sensor_data (id, sensor_id, timestamp, temperature, humidity, additional_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	// Prázdná mapa se ukládá jako NULL.
	var extra any
	if len(rd.AdditionalData) > 0 {
		extra = rd.AdditionalData
	}

	err := r.db.QueryRow(ctx, query, rd.ID, rd.SensorID, rd.Timestamp, rd.Temperature, rd.Humidity, extra).
		Scan(&rd.CreatedAt)
	if err != nil {
		return model.Reading{}, classify("insert sensor_data", err)
	}
	return rd, nil
}

func (r *Readings) Latest(ctx context.Context, sensorKey string, n int) ([]model.Reading, error) {
	query := `SELECT ` + readingColumns + `
		FROM sensor_data
		WHERE sensor_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, sensorKey, n)
	if err != nil {
		return nil, classify("select latest sensor_data", err)
	}
	return collectReadings(rows)
}

func (r *Readings) Range(ctx context.Context, sensorKey string, from, to time.Time) ([]model.Reading, error) {
	query := `SELECT ` + readingColumns + `
		FROM sensor_data
		WHERE sensor_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp ASC`

	rows, err := r.db.Query(ctx, query, sensorKey, from, to)
	if err != nil {
		return nil, classify("select range sensor_data", err)
	}
	return collectReadings(rows)
}

// LatestFor použije DISTINCT ON, takže celý snapshot je jeden dotaz místo N dotazů.
func (r *Readings) LatestFor(ctx context.Context, sensorKeys []string) (map[string]model.Reading, error) {
	out := make(map[string]model.Reading, len(sensorKeys))
	if len(sensorKeys) == 0 {
		return out, nil
	}

	query := `SELECT DISTINCT ON (sensor_id) ` + readingColumns + `
		FROM sensor_data
		WHERE sensor_id = ANY($1)
		ORDER BY sensor_id, timestamp DESC`

	rows, err := r.db.Query(ctx, query, sensorKeys)
	if err != nil {
		return nil, classify("select latest per sensor", err)
	}
	list, err := collectReadings(rows)
	if err != nil {
		return nil, err
	}
	for _, rd := range list {
		out[rd.SensorID] = rd
	}
	return out, nil
}

func collectReadings(rows pgx.Rows) ([]model.Reading, error) {
	defer rows.Close()

	out := make([]model.Reading, 0)
	for rows.Next() {
		var rd model.Reading
		if err := rows.Scan(&rd.ID, &rd.SensorID, &rd.Timestamp, &rd.Temperature, &rd.Humidity, &rd.AdditionalData, &rd.CreatedAt); err != nil {
			return nil, classify("scan sensor_data", err)
		}
		rd.Timestamp = rd.Timestamp.UTC()
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate sensor_data", err)
	}
	return out, nil
}
