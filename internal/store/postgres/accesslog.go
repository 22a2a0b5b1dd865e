package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-telemetry/internal/model"
)

// AccessLog je auditní tabulka sensor_access_logs.
type AccessLog struct {
	db *pgxpool.Pool
}

func (l *AccessLog) Record(ctx context.Context, userID, sensorKey, action string) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO sensor_access_logs (id, user_id, sensor_id, action) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), userID, sensorKey, action)
	return classify("insert access log", err)
}

func (l *AccessLog) ByUser(ctx context.Context, userID string) ([]model.AccessLogEntry, error) {
	return l.query(ctx, `WHERE user_id = $1`, userID)
}

func (l *AccessLog) BySensor(ctx context.Context, sensorKey string) ([]model.AccessLogEntry, error) {
	return l.query(ctx, `WHERE sensor_id = $1`, sensorKey)
}

func (l *AccessLog) All(ctx context.Context) ([]model.AccessLogEntry, error) {
	return l.query(ctx, ``)
}

func (l *AccessLog) query(ctx context.Context, where string, args ...any) ([]model.AccessLogEntry, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id, user_id, sensor_id, action, timestamp FROM sensor_access_logs `+where+` ORDER BY timestamp DESC`,
		args...)
	if err != nil {
		return nil, classify("select access log", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AccessLogEntry, error) {
		var e model.AccessLogEntry
		err := row.Scan(&e.ID, &e.UserID, &e.SensorID, &e.Action, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, classify("scan access log", err)
	}
	return out, nil
}
