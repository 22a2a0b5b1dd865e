package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tenant-telemetry/internal/model"
)

// SensorCache drží kopii registru senzorů v paměti a obsluhuje z ní dotazy.
// Registr se mění zřídka, ale ingestion a broadcast se na něj ptají neustále.
//
// Cache se obnovuje celá (read-copy-update): nová mapa se postaví bokem
// a pod zámkem se jen prohodí pointery.
type SensorCache struct {
	src    SensorStore
	logger *slog.Logger

	mu         sync.RWMutex
	byKey      map[string]model.Sensor
	byID       map[string]model.Sensor
	ordered    []model.Sensor
	loadedOnce bool
}

var _ SensorStore = (*SensorCache)(nil)

// NewSensorCache vytvoří prázdnou cache nad zdrojovým registrem.
func NewSensorCache(src SensorStore, logger *slog.Logger) *SensorCache {
	return &SensorCache{
		src:    src,
		logger: logger,
		byKey:  make(map[string]model.Sensor),
		byID:   make(map[string]model.Sensor),
	}
}

// Load načte celý registr ze zdroje.
func (c *SensorCache) Load(ctx context.Context) error {
	sensors, err := c.src.All(ctx)
	if err != nil {
		return err
	}

	byKey := make(map[string]model.Sensor, len(sensors))
	byID := make(map[string]model.Sensor, len(sensors))
	for _, s := range sensors {
		byKey[s.SensorID] = s
		byID[s.ID] = s
	}

	c.mu.Lock()
	c.byKey = byKey
	c.byID = byID
	c.ordered = sensors
	c.loadedOnce = true
	c.mu.Unlock()

	c.logger.Debug("Sensor registry reloaded", "sensors", len(sensors))
	return nil
}

// StartAutoRefresh obnovuje cache v daném intervalu, dokud ctx neskončí.
func (c *SensorCache) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Load(ctx); err != nil {
				c.logger.Error("Failed to refresh sensor registry", "error", err)
			}
		}
	}
}

// ByExternalID hledá v cache; při minutí se zeptá zdroje (senzor mohl přibýt od posledního refreshe).
func (c *SensorCache) ByExternalID(ctx context.Context, sensorKey string) (model.Sensor, error) {
	c.mu.RLock()
	s, ok := c.byKey[sensorKey]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := c.src.ByExternalID(ctx, sensorKey)
	if err != nil {
		return model.Sensor{}, err
	}
	c.put(s)
	return s, nil
}

// ByInternalID funguje stejně jako ByExternalID, jen podle interního ID.
func (c *SensorCache) ByInternalID(ctx context.Context, id string) (model.Sensor, error) {
	c.mu.RLock()
	s, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := c.src.ByInternalID(ctx, id)
	if err != nil {
		return model.Sensor{}, err
	}
	c.put(s)
	return s, nil
}

// ByCompany filtruje cache podle tenanta.
func (c *SensorCache) ByCompany(ctx context.Context, companyID string) ([]model.Sensor, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Sensor, 0)
	for _, s := range all {
		if s.CompanyID == companyID {
			out = append(out, s)
		}
	}
	return out, nil
}

// All vrací kopii celého registru. Před prvním Load se zeptá zdroje.
func (c *SensorCache) All(ctx context.Context) ([]model.Sensor, error) {
	c.mu.RLock()
	loaded := c.loadedOnce
	out := make([]model.Sensor, len(c.ordered))
	copy(out, c.ordered)
	c.mu.RUnlock()

	if loaded {
		return out, nil
	}
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c.All(ctx)
}

func (c *SensorCache) put(s model.Sensor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[s.ID]; exists {
		for i := range c.ordered {
			if c.ordered[i].ID == s.ID {
				c.ordered[i] = s
			}
		}
	} else {
		c.ordered = append(c.ordered, s)
	}
	c.byKey[s.SensorID] = s
	c.byID[s.ID] = s
}
