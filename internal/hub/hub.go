// Package hub obsluhuje živá spojení dashboardů.
//
// Hub drží registr spojení a jejich odběry. Data posílá dvěma cestami:
// cíleně po každém uloženém měření (jen odběratelům, po znovuověření práv)
// a periodicky jako filtrovaný snímek celého registru senzorů.
// O přístupu rozhoduje výhradně access.Resolver.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tenant-telemetry/internal/access"
	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/events"
	"tenant-telemetry/internal/metrics"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/status"
	"tenant-telemetry/internal/store"
)

const (
	DefaultBroadcastInterval = 5 * time.Second
	DefaultQueueSize         = 64
	DefaultMaxDrops          = 32
	DefaultDataLimit         = 10
	MaxDataLimit             = 500
)

// Config parametrizuje hub. Nulové hodnoty se nahradí defaulty.
type Config struct {
	BroadcastInterval time.Duration
	// QueueSize je kapacita odchozí fronty jednoho spojení.
	QueueSize int
	// MaxDrops: po tolika zahozených zprávách za sebou se spojení zavře.
	MaxDrops   int
	Thresholds status.Thresholds
}

func (c Config) withDefaults() Config {
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxDrops <= 0 {
		c.MaxDrops = DefaultMaxDrops
	}
	if c.Thresholds == (status.Thresholds{}) {
		c.Thresholds = status.DefaultThresholds
	}
	return c
}

// Hub je vlastník registru spojení.
type Hub struct {
	cfg       Config
	registry  *Registry
	resolver  *access.Resolver
	sensors   store.SensorStore
	readings  store.ReadingStore
	accessLog store.AccessLogStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(cfg Config, resolver *access.Resolver, stores store.Stores, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:       cfg.withDefaults(),
		registry:  NewRegistry(),
		resolver:  resolver,
		sensors:   stores.Sensors,
		readings:  stores.Readings,
		accessLog: stores.AccessLog,
		metrics:   m,
		logger:    logger,
	}
}

// Registry zpřístupňuje registr (počty spojení pro health a testy).
func (h *Hub) Registry() *Registry { return h.registry }

// Attach přiřadí ověřeného principala, zaregistruje spojení a pošle mu úvodní snímek.
func (h *Hub) Attach(ctx context.Context, c *Conn, p model.Principal) error {
	if !c.authenticate(p) {
		return fmt.Errorf("spojení %s není ve stavu connecting (%s)", c.ID, c.State())
	}
	n := h.registry.Add(c)
	h.metrics.Connections.Set(float64(n))
	h.logger.Info("Klient připojen", "conn", c.ID, "user_id", p.UserID, "role", p.Role)

	views, err := h.VisibleViews(ctx, p)
	if err != nil {
		// Klient dostane data s příštím tickem.
		h.logger.Error("Nelze sestavit úvodní snímek", "conn", c.ID, "error", err)
		return nil
	}
	h.push(c, registryMessage{Type: TypeRegistrySnapshot, Sensors: views})
	return nil
}

// Disconnect odregistruje spojení a zahodí jeho odběry. Idempotentní.
func (h *Hub) Disconnect(c *Conn) {
	dropped := c.disconnect()
	c.Close()
	if dropped < 0 {
		return
	}

	if removed, n := h.registry.Remove(c); removed {
		h.metrics.Connections.Set(float64(n))
	}
	h.metrics.Subscriptions.Sub(float64(dropped))
	h.logger.Info("Klient odpojen", "conn", c.ID, "user_id", c.Principal().UserID)
}

// Subscribe přidá odběr senzoru. Při zamítnutí se stav nemění.
func (h *Hub) Subscribe(ctx context.Context, c *Conn, sensorKey string) error {
	if c.State() != StateAuthenticated {
		return apperr.Unauthorized("spojení není ověřené")
	}
	p := c.Principal()

	sensor, err := h.sensors.ByExternalID(ctx, sensorKey)
	if err != nil {
		return err
	}
	if err := h.authorizeView(ctx, p, sensor); err != nil {
		return err
	}

	if c.addSub(sensor.SensorID) {
		h.metrics.Subscriptions.Inc()
	}
	h.record(ctx, p.UserID, sensor.SensorID, model.ActionSubscribed)

	latest, err := h.readings.Latest(ctx, sensor.SensorID, 1)
	if err != nil {
		h.logger.Warn("Nelze načíst poslední měření", "sensor_id", sensor.SensorID, "error", err)
		return nil
	}
	if len(latest) > 0 {
		h.pushReading(c, latest[0])
	}
	return nil
}

// Unsubscribe odebere odběr. Idempotentní a bez autorizace.
func (h *Hub) Unsubscribe(c *Conn, sensorKey string) {
	if c.removeSub(sensorKey) {
		h.metrics.Subscriptions.Dec()
	}
}

// GetData vrátí posledních limit měření senzoru (default 10, max 500).
func (h *Hub) GetData(ctx context.Context, c *Conn, sensorKey string, limit int) ([]model.Reading, error) {
	if c.State() != StateAuthenticated {
		return nil, apperr.Unauthorized("spojení není ověřené")
	}
	return h.SensorData(ctx, c.Principal(), sensorKey, limit)
}

// SensorData je GetData bez spojení, pro HTTP API.
func (h *Hub) SensorData(ctx context.Context, p model.Principal, sensorKey string, limit int) ([]model.Reading, error) {
	sensor, err := h.sensors.ByExternalID(ctx, sensorKey)
	if err != nil {
		return nil, err
	}
	if err := h.authorizeView(ctx, p, sensor); err != nil {
		return nil, err
	}
	h.record(ctx, p.UserID, sensor.SensorID, model.ActionViewedLogs)

	return h.readings.Latest(ctx, sensor.SensorID, ClampLimit(limit))
}

// ClampLimit: <= 0 znamená default, víc než MaxDataLimit se ořízne.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultDataLimit
	case limit > MaxDataLimit:
		return MaxDataLimit
	}
	return limit
}

// HandleReading doručí uložené měření odběratelům. Každého znovu ověří;
// kdo oprávnění ztratil, přijde o odběr a dostane subscriptionRevoked.
func (h *Hub) HandleReading(ctx context.Context, rd model.Reading) {
	subscribers := h.registry.SubscribersOf(rd.SensorID)
	if len(subscribers) == 0 {
		return
	}

	sensor, err := h.sensors.ByExternalID(ctx, rd.SensorID)
	if errors.Is(err, apperr.ErrNotFound) {
		for _, c := range subscribers {
			h.revoke(c, rd.SensorID, "sensor no longer exists")
		}
		return
	}
	if err != nil {
		h.logger.Error("Registr senzorů nedostupný, měření nedoručeno", "sensor_id", rd.SensorID, "error", err)
		return
	}

	for _, c := range subscribers {
		ok, err := h.resolver.HasPermission(ctx, c.Principal(), sensor, model.PermView)
		if err != nil {
			h.logger.Error("Ověření oprávnění selhalo", "conn", c.ID, "sensor_id", rd.SensorID, "error", err)
			continue
		}
		if !ok {
			h.revoke(c, rd.SensorID, "access revoked")
			continue
		}
		h.pushReading(c, rd)
	}
}

// Tick provede jeden periodický broadcast. Bez spojení nesahá na úložiště.
func (h *Hub) Tick(ctx context.Context) {
	conns := h.registry.Snapshot()
	if len(conns) == 0 {
		return
	}
	start := time.Now()
	defer func() { h.metrics.BroadcastTicks.Observe(time.Since(start).Seconds()) }()

	all, err := h.sensors.All(ctx)
	if err != nil {
		h.logger.Error("Broadcast: nelze načíst registr senzorů", "error", err)
		return
	}
	snapshot, err := h.enrich(ctx, all)
	if err != nil {
		h.logger.Error("Broadcast: nelze načíst poslední měření", "error", err)
		return
	}

	// Granty se načítají jednou na uživatele, ne na spojení.
	grantsByUser := make(map[string][]model.AccessGrant)
	for _, c := range conns {
		p := c.Principal()
		if p.Role == model.RolePlatformAdmin {
			continue
		}
		if _, done := grantsByUser[p.UserID]; done {
			continue
		}
		grants, err := h.resolver.GrantsOf(ctx, p)
		if err != nil {
			h.logger.Error("Broadcast: nelze načíst granty", "user_id", p.UserID, "error", err)
			grants = nil
		}
		grantsByUser[p.UserID] = grants
	}

	for _, c := range conns {
		p := c.Principal()
		visible := access.Visible(p, grantsByUser[p.UserID])
		views := make([]SensorView, 0, len(snapshot))
		for _, v := range snapshot {
			if visible(v.Sensor) {
				views = append(views, v)
			}
		}
		h.push(c, registryMessage{Type: TypeRegistryUpdate, Sensors: views})
	}
}

// Run zpracovává události z busu a periodický broadcast, dokud ctx neskončí.
func (h *Hub) Run(ctx context.Context, bus <-chan events.ReadingReceived) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-bus:
				h.HandleReading(ctx, ev.Reading)
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.cfg.BroadcastInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Tick(ctx)
			}
		}
	}()

	wg.Wait()
	for _, c := range h.registry.Snapshot() {
		h.Disconnect(c)
	}
}

// VisibleViews vrátí obohacený seznam senzorů viditelných pro principala.
func (h *Hub) VisibleViews(ctx context.Context, p model.Principal) ([]SensorView, error) {
	sensors, err := h.resolver.VisibleSensors(ctx, p)
	if err != nil {
		return nil, err
	}
	return h.enrich(ctx, sensors)
}

// Status klasifikuje měření podle nastavených limitů.
func (h *Hub) Status(rd *model.Reading) status.Status {
	if rd == nil {
		return status.Classify(nil, nil, h.cfg.Thresholds)
	}
	return status.Classify(rd.Temperature, rd.Humidity, h.cfg.Thresholds)
}

func (h *Hub) enrich(ctx context.Context, sensors []model.Sensor) ([]SensorView, error) {
	views := make([]SensorView, len(sensors))
	if len(sensors) == 0 {
		return views, nil
	}

	keys := make([]string, len(sensors))
	for i, s := range sensors {
		keys[i] = s.SensorID
	}
	latest, err := h.readings.LatestFor(ctx, keys)
	if err != nil {
		return nil, err
	}

	for i, s := range sensors {
		views[i] = SensorView{Sensor: s}
		if rd, ok := latest[s.SensorID]; ok {
			views[i].LastReading = &rd
		}
		views[i].Status = h.Status(views[i].LastReading)
	}
	return views, nil
}

func (h *Hub) authorizeView(ctx context.Context, p model.Principal, s model.Sensor) error {
	ok, err := h.resolver.HasPermission(ctx, p, s, model.PermView)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("nemáte přístup k senzoru %s", s.SensorID)
	}
	return nil
}

func (h *Hub) record(ctx context.Context, userID, sensorKey, action string) {
	if err := h.accessLog.Record(ctx, userID, sensorKey, action); err != nil {
		h.logger.Warn("Zápis do access logu selhal", "user_id", userID, "sensor_id", sensorKey, "action", action, "error", err)
	}
}

func (h *Hub) revoke(c *Conn, sensorKey, reason string) {
	if !c.removeSub(sensorKey) {
		return
	}
	h.metrics.Subscriptions.Dec()
	h.metrics.Revocations.Inc()
	h.logger.Info("Odběr zrušen", "conn", c.ID, "sensor_id", sensorKey, "reason", reason)
	h.push(c, revokedMessage{Type: TypeSubscriptionRevoked, SensorID: sensorKey, Reason: reason})
}

func (h *Hub) pushReading(c *Conn, rd model.Reading) {
	h.push(c, readingMessage{Type: TypeReading, SensorID: rd.SensorID, Reading: rd, Status: h.Status(&rd)})
}

// push zařadí zprávu do fronty spojení. Plná fronta zprávu zahodí;
// spojení, které dlouhodobě nečte, se zavře.
func (h *Hub) push(c *Conn, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Nelze serializovat zprávu", "conn", c.ID, "error", err)
		return
	}
	if c.enqueue(payload) {
		return
	}
	if c.State() == StateDisconnected {
		return
	}

	h.metrics.PushDropped.Inc()
	if c.consecutiveDrops() >= h.cfg.MaxDrops {
		h.logger.Warn("Klient nestíhá číst, zavírám spojení", "conn", c.ID)
		h.Disconnect(c)
	}
}
