package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
)

// Sensors čte registr senzorů. Zápisy dělá externí správa; Upsert a Delete
// existují pro seed a pro integrační testy.
type Sensors struct {
	db *pgxpool.Pool
}

const sensorColumns = `id, sensor_id, name, description, location, type, company_id, is_active`

func (s *Sensors) ByExternalID(ctx context.Context, sensorKey string) (model.Sensor, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE sensor_id = $1`, sensorKey)
	sensor, err := scanSensor(row)
	if err != nil {
		return model.Sensor{}, classify(fmt.Sprintf("sensor with sensor_id %s", sensorKey), err)
	}
	return sensor, nil
}

func (s *Sensors) ByInternalID(ctx context.Context, id string) (model.Sensor, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE id = $1`, id)
	sensor, err := scanSensor(row)
	if err != nil {
		return model.Sensor{}, classify(fmt.Sprintf("sensor with ID %s", id), err)
	}
	return sensor, nil
}

func (s *Sensors) ByCompany(ctx context.Context, companyID string) ([]model.Sensor, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE company_id = $1 ORDER BY sensor_id`, companyID)
	if err != nil {
		return nil, classify("select sensors by company", err)
	}
	return collectSensors(rows)
}

func (s *Sensors) All(ctx context.Context) ([]model.Sensor, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sensorColumns+` FROM sensors ORDER BY sensor_id`)
	if err != nil {
		return nil, classify("select sensors", err)
	}
	return collectSensors(rows)
}

// Upsert vloží nebo aktualizuje senzor podle interního ID.
func (s *Sensors) Upsert(ctx context.Context, sensor model.Sensor) (model.Sensor, error) {
	if sensor.CompanyID == "" {
		return model.Sensor{}, apperr.Validation("sensor %s has no company", sensor.SensorID)
	}
	if sensor.ID == "" {
		sensor.ID = uuid.NewString()
	}
	query := `
		INSERT INTO sensors (` + sensorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			sensor_id = EXCLUDED.sensor_id, name = EXCLUDED.name, description = EXCLUDED.description,
			location = EXCLUDED.location, type = EXCLUDED.type, company_id = EXCLUDED.company_id,
			is_active = EXCLUDED.is_active`
	_, err := s.db.Exec(ctx, query, sensor.ID, sensor.SensorID, sensor.Name, sensor.Description,
		sensor.Location, sensor.Type, sensor.CompanyID, sensor.IsActive)
	if err != nil {
		return model.Sensor{}, classify(fmt.Sprintf("sensor with ID %s already exists", sensor.SensorID), err)
	}
	return sensor, nil
}

// Delete smaže senzor; granty smaže databáze kaskádou.
func (s *Sensors) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sensors WHERE id = $1`, id)
	if err != nil {
		return classify("delete sensor", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("sensor with ID %s not found", id)
	}
	return nil
}

func scanSensor(row pgx.Row) (model.Sensor, error) {
	var s model.Sensor
	err := row.Scan(&s.ID, &s.SensorID, &s.Name, &s.Description, &s.Location, &s.Type, &s.CompanyID, &s.IsActive)
	return s, err
}

func collectSensors(rows pgx.Rows) ([]model.Sensor, error) {
	defer rows.Close()

	out := make([]model.Sensor, 0)
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, classify("scan sensors", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate sensors", err)
	}
	return out, nil
}
