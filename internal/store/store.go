// Package store definuje rozhraní úložišť, se kterými jádro platformy pracuje.
//
// Implementace: postgres (pgx, zdroj pravdy), valkey (hot cache posledního měření)
// a memory (testy a lokální běh bez databáze).
package store

import (
	"context"
	"time"

	"tenant-telemetry/internal/model"
)

// ReadingStore ukládá a čte měření. Záznamy jsou append-only.
type ReadingStore interface {
	// Save uloží měření a vrátí ho doplněné o ID a CreatedAt.
	Save(ctx context.Context, r model.Reading) (model.Reading, error)
	// Latest vrátí posledních n měření senzoru, nejnovější první.
	Latest(ctx context.Context, sensorKey string, n int) ([]model.Reading, error)
	// Range vrátí měření v intervalu [from, to], seřazená vzestupně podle času.
	Range(ctx context.Context, sensorKey string, from, to time.Time) ([]model.Reading, error)
	// LatestFor vrátí poslední měření pro každý z klíčů najednou.
	// Klíče bez měření ve výsledku chybí.
	LatestFor(ctx context.Context, sensorKeys []string) (map[string]model.Reading, error)
}

// SensorStore je registr senzorů (čtecí strana, CRUD je mimo jádro).
type SensorStore interface {
	ByExternalID(ctx context.Context, sensorKey string) (model.Sensor, error)
	ByInternalID(ctx context.Context, id string) (model.Sensor, error)
	ByCompany(ctx context.Context, companyID string) ([]model.Sensor, error)
	All(ctx context.Context) ([]model.Sensor, error)
}

// AccessStore spravuje granty. Grant vrací apperr.ErrConflict pro duplicitní dvojici,
// Revoke a Get vrací apperr.ErrNotFound.
type AccessStore interface {
	Grant(ctx context.Context, g model.AccessGrant) (model.AccessGrant, error)
	Revoke(ctx context.Context, sensorID, userID string) error
	Get(ctx context.Context, sensorID, userID string) (model.AccessGrant, error)
	ListByUser(ctx context.Context, userID string) ([]model.AccessGrant, error)
	ListBySensor(ctx context.Context, sensorID string) ([]model.AccessGrant, error)
}

// AccessLogStore je auditní log přístupů k datům senzorů.
type AccessLogStore interface {
	Record(ctx context.Context, userID, sensorKey, action string) error
	ByUser(ctx context.Context, userID string) ([]model.AccessLogEntry, error)
	BySensor(ctx context.Context, sensorKey string) ([]model.AccessLogEntry, error)
	All(ctx context.Context) ([]model.AccessLogEntry, error)
}

// Stores sdružuje všechna úložiště, aby je main mohl předat jedním parametrem.
type Stores struct {
	Readings  ReadingStore
	Sensors   SensorStore
	Access    AccessStore
	AccessLog AccessLogStore
}
