//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
)

// startPostgres spustí TimescaleDB kontejner a vrátí připojený, zmigrovaný pool.
func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "timescale/timescaledb:latest-pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "iot_db",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://postgres:postgres@%s:%s/iot_db?sslmode=disable", host, port.Port())
	pool, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestIntegration_Postgres(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	stores := New(pool)
	sensors := stores.Sensors.(*Sensors)

	s1, err := sensors.Upsert(ctx, model.Sensor{SensorID: "temp-1", Name: "Hala A", CompanyID: "c1", IsActive: true})
	require.NoError(t, err)
	_, err = sensors.Upsert(ctx, model.Sensor{SensorID: "temp-1", Name: "dup", CompanyID: "c2"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	t.Run("readings", func(t *testing.T) {
		base := time.Unix(1700000000, 0).UTC()
		temp := 22.5
		for i := 0; i < 3; i++ {
			_, err := stores.Readings.Save(ctx, model.Reading{
				SensorID:    "temp-1",
				Timestamp:   base.Add(time.Duration(i) * time.Minute),
				Temperature: &temp,
			})
			require.NoError(t, err)
		}
		saved, err := stores.Readings.Save(ctx, model.Reading{
			SensorID:       "unregistered",
			Timestamp:      base,
			AdditionalData: map[string]any{"battery": 87.0},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)

		latest, err := stores.Readings.Latest(ctx, "temp-1", 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, base.Add(2*time.Minute), latest[0].Timestamp)
		assert.Nil(t, latest[0].Humidity)
		assert.Nil(t, latest[0].AdditionalData)

		rng, err := stores.Readings.Range(ctx, "temp-1", base, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, rng, 2)

		m, err := stores.Readings.LatestFor(ctx, []string{"temp-1", "unregistered", "none"})
		require.NoError(t, err)
		assert.Len(t, m, 2)
		assert.Equal(t, 87.0, m["unregistered"].AdditionalData["battery"])
	})

	t.Run("grants cascade with sensor", func(t *testing.T) {
		_, err := stores.Access.Grant(ctx, model.AccessGrant{SensorID: s1.ID, UserID: "u1", CanView: true})
		require.NoError(t, err)
		_, err = stores.Access.Grant(ctx, model.AccessGrant{SensorID: s1.ID, UserID: "u1", CanView: true})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		_, err = stores.Access.Grant(ctx, model.AccessGrant{SensorID: "missing", UserID: "u1"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		list, err := stores.Access.ListByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, sensors.Delete(ctx, s1.ID))
		list, err = stores.Access.ListBySensor(ctx, s1.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		assert.ErrorIs(t, stores.Access.Revoke(ctx, s1.ID, "u1"), apperr.ErrNotFound)
	})

	t.Run("access log", func(t *testing.T) {
		require.NoError(t, stores.AccessLog.Record(ctx, "u1", "temp-1", model.ActionSubscribed))
		require.NoError(t, stores.AccessLog.Record(ctx, "u2", "temp-1", model.ActionViewedLogs))

		byUser, err := stores.AccessLog.ByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, byUser, 1)

		bySensor, err := stores.AccessLog.BySensor(ctx, "temp-1")
		require.NoError(t, err)
		assert.Len(t, bySensor, 2)
	})
}
