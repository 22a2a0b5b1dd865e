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

// Access ukládá granty do sensor_user_access. Unikátní index (sensor_id, user_id)
// hlídá duplicity i při souběžných požadavcích.
type Access struct {
	db *pgxpool.Pool
}

const grantColumns = `id, sensor_id, user_id, can_view, can_edit, can_delete, description, created_by, created_at`

func (a *Access) Grant(ctx context.Context, g model.AccessGrant) (model.AccessGrant, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	query := `
		INSERT INTO sensor_user_access (id, sensor_id, user_id, can_view, can_edit, can_delete, description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := a.db.QueryRow(ctx, query, g.ID, g.SensorID, g.UserID, g.CanView, g.CanEdit, g.CanDelete, g.Description, g.CreatedBy).
		Scan(&g.CreatedAt)
	if err != nil {
		return model.AccessGrant{}, classify(fmt.Sprintf("access for user %s to sensor %s", g.UserID, g.SensorID), err)
	}
	return g, nil
}

func (a *Access) Revoke(ctx context.Context, sensorID, userID string) error {
	tag, err := a.db.Exec(ctx, `DELETE FROM sensor_user_access WHERE sensor_id = $1 AND user_id = $2`, sensorID, userID)
	if err != nil {
		return classify("delete access", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("no access defined for user %s to sensor %s", userID, sensorID)
	}
	return nil
}

func (a *Access) Get(ctx context.Context, sensorID, userID string) (model.AccessGrant, error) {
	row := a.db.QueryRow(ctx, `SELECT `+grantColumns+` FROM sensor_user_access WHERE sensor_id = $1 AND user_id = $2`, sensorID, userID)
	g, err := scanGrant(row)
	if err != nil {
		return model.AccessGrant{}, classify(fmt.Sprintf("no access defined for user %s to sensor %s", userID, sensorID), err)
	}
	return g, nil
}

func (a *Access) ListByUser(ctx context.Context, userID string) ([]model.AccessGrant, error) {
	rows, err := a.db.Query(ctx, `SELECT `+grantColumns+` FROM sensor_user_access WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, classify("select access by user", err)
	}
	return collectGrants(rows)
}

func (a *Access) ListBySensor(ctx context.Context, sensorID string) ([]model.AccessGrant, error) {
	rows, err := a.db.Query(ctx, `SELECT `+grantColumns+` FROM sensor_user_access WHERE sensor_id = $1 ORDER BY created_at`, sensorID)
	if err != nil {
		return nil, classify("select access by sensor", err)
	}
	return collectGrants(rows)
}

func scanGrant(row pgx.Row) (model.AccessGrant, error) {
	var g model.AccessGrant
	err := row.Scan(&g.ID, &g.SensorID, &g.UserID, &g.CanView, &g.CanEdit, &g.CanDelete, &g.Description, &g.CreatedBy, &g.CreatedAt)
	return g, err
}

func collectGrants(rows pgx.Rows) ([]model.AccessGrant, error) {
	defer rows.Close()

	out := make([]model.AccessGrant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, classify("scan access", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate access", err)
	}
	return out, nil
}
