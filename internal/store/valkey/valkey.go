// Package valkey drží "hot" stav: poslední měření každého senzoru v Valkey (Redis).
//
// LatestCache obaluje ReadingStore. Zdrojem pravdy zůstává Postgres, cache jen
// zrychluje snapshot pro broadcast a nikdy neovlivní výsledek uložení.
package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store"
)

// DefaultTTL: mrtvé senzory z cache po 24h zmizí.
const DefaultTTL = 24 * time.Hour

// Connect vytvoří klienta a ověří spojení pingem.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("Valkey není dostupný: %w", err)
	}
	return rdb, nil
}

// LatestCache je ReadingStore s cache posledního měření.
type LatestCache struct {
	store.ReadingStore

	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.ReadingStore = (*LatestCache)(nil)

func NewLatestCache(inner store.ReadingStore, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *LatestCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LatestCache{ReadingStore: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// Key vrací klíč posledního měření, např. "sensor:last:temp-1".
func Key(sensorKey string) string {
	return "sensor:last:" + sensorKey
}

// Save uloží do Postgresu a poté přepíše hodnotu v cache.
// Chyba Valkey není kritická (data máme v PG), jen se zaloguje.
func (c *LatestCache) Save(ctx context.Context, rd model.Reading) (model.Reading, error) {
	saved, err := c.ReadingStore.Save(ctx, rd)
	if err != nil {
		return saved, err
	}

	c.remember(ctx, saved)
	return saved, nil
}

// Latest s n == 1 obslouží z cache, jinak jde rovnou do úložiště.
func (c *LatestCache) Latest(ctx context.Context, sensorKey string, n int) ([]model.Reading, error) {
	if n == 1 {
		if rd, ok := c.get(ctx, sensorKey); ok {
			return []model.Reading{rd}, nil
		}
	}
	return c.ReadingStore.Latest(ctx, sensorKey, n)
}

// LatestFor načte všechny klíče jedním MGET; chybějící dotáhne z úložiště najednou.
func (c *LatestCache) LatestFor(ctx context.Context, sensorKeys []string) (map[string]model.Reading, error) {
	out := make(map[string]model.Reading, len(sensorKeys))
	if len(sensorKeys) == 0 {
		return out, nil
	}

	keys := make([]string, len(sensorKeys))
	for i, k := range sensorKeys {
		keys[i] = Key(k)
	}

	missing := sensorKeys
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("Valkey MGET selhal, čtu z DB", "error", err)
	} else {
		missing = make([]string, 0)
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, sensorKeys[i])
				continue
			}
			var rd model.Reading
			if err := json.Unmarshal([]byte(s), &rd); err != nil {
				missing = append(missing, sensorKeys[i])
				continue
			}
			out[sensorKeys[i]] = rd
		}
	}

	if len(missing) == 0 {
		return out, nil
	}
	fromDB, err := c.ReadingStore.LatestFor(ctx, missing)
	if err != nil {
		return nil, err
	}
	for k, rd := range fromDB {
		out[k] = rd
		c.remember(ctx, rd)
	}
	return out, nil
}

// remember zapíše měření do cache, pokud není starší než to, co už tam je.
// Zařízení může poslat zpožděné měření a to nesmí přepsat novější hodnotu.
func (c *LatestCache) remember(ctx context.Context, rd model.Reading) {
	if cur, ok := c.get(ctx, rd.SensorID); ok && cur.Timestamp.After(rd.Timestamp) {
		return
	}

	payload, err := json.Marshal(rd)
	if err != nil {
		c.logger.Error("Nelze serializovat měření do cache", "sensor_id", rd.SensorID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, Key(rd.SensorID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Chyba update Valkey", "sensor_id", rd.SensorID, "error", err)
	}
}

func (c *LatestCache) get(ctx context.Context, sensorKey string) (model.Reading, bool) {
	s, err := c.rdb.Get(ctx, Key(sensorKey)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Chyba čtení z Valkey", "sensor_id", sensorKey, "error", err)
		}
		return model.Reading{}, false
	}
	var rd model.Reading
	if err := json.Unmarshal([]byte(s), &rd); err != nil {
		return model.Reading{}, false
	}
	return rd, true
}
