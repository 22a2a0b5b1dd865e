// Package memory implementuje úložiště v paměti procesu.
// Slouží pro testy a pro lokální běh se STORE=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store"
)

var (
	_ store.ReadingStore   = (*Readings)(nil)
	_ store.SensorStore    = (*Sensors)(nil)
	_ store.AccessStore    = (*Access)(nil)
	_ store.AccessLogStore = (*AccessLog)(nil)
)

// New vytvoří propojenou sadu paměťových úložišť.
// Granty jsou navázané na registr senzorů, aby smazání senzoru smazalo i jeho granty.
func New() (*Sensors, *Readings, *Access, *AccessLog) {
	access := NewAccess()
	sensors := NewSensors(access)
	return sensors, NewReadings(), access, NewAccessLog()
}

// Stores vrátí paměťová úložiště zabalená do store.Stores.
func Stores() (store.Stores, *Sensors) {
	sensors, readings, access, log := New()
	return store.Stores{Readings: readings, Sensors: sensors, Access: access, AccessLog: log}, sensors
}

// --- Readings ---

// Readings drží měření seskupená podle sensor_id ve vzestupném pořadí podle času.
type Readings struct {
	mu   sync.RWMutex
	data map[string][]model.Reading
	now  func() time.Time
}

func NewReadings() *Readings {
	return &Readings{data: make(map[string][]model.Reading), now: time.Now}
}

func (r *Readings) Save(_ context.Context, rd model.Reading) (model.Reading, error) {
	if rd.ID == "" {
		rd.ID = uuid.NewString()
	}
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.data[rd.SensorID]
	// Vložení se zachováním pořadí; stejný čas zůstává v pořadí příchodu.
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(rd.Timestamp) })
	list = append(list, model.Reading{})
	copy(list[i+1:], list[i:])
	list[i] = rd
	r.data[rd.SensorID] = list
	return rd, nil
}

func (r *Readings) Latest(_ context.Context, sensorKey string, n int) ([]model.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.data[sensorKey]
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]model.Reading, 0, n)
	for i := len(list) - 1; i >= len(list)-n; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (r *Readings) Range(_ context.Context, sensorKey string, from, to time.Time) ([]model.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Reading, 0)
	for _, rd := range r.data[sensorKey] {
		if rd.Timestamp.Before(from) || rd.Timestamp.After(to) {
			continue
		}
		out = append(out, rd)
	}
	return out, nil
}

func (r *Readings) LatestFor(_ context.Context, sensorKeys []string) (map[string]model.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.Reading, len(sensorKeys))
	for _, k := range sensorKeys {
		if list := r.data[k]; len(list) > 0 {
			out[k] = list[len(list)-1]
		}
	}
	return out, nil
}

// Count vrací počet uložených měření (pro testy).
func (r *Readings) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.data {
		n += len(list)
	}
	return n
}

// --- Sensors ---

// Sensors je registr senzorů. Put a Delete simulují externí CRUD.
type Sensors struct {
	mu      sync.RWMutex
	byID    map[string]model.Sensor
	order   []string
	cascade *Access
}

func NewSensors(cascade *Access) *Sensors {
	return &Sensors{byID: make(map[string]model.Sensor), cascade: cascade}
}

// Put vloží nebo přepíše senzor. Duplicitní sensor_id u jiného ID je konflikt.
func (s *Sensors) Put(sensor model.Sensor) (model.Sensor, error) {
	if sensor.ID == "" {
		sensor.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.SensorID == sensor.SensorID && existing.ID != sensor.ID {
			return model.Sensor{}, apperr.Conflict("sensor with ID %s already exists", sensor.SensorID)
		}
	}
	if _, ok := s.byID[sensor.ID]; !ok {
		s.order = append(s.order, sensor.ID)
	}
	s.byID[sensor.ID] = sensor
	return sensor, nil
}

// Delete smaže senzor i všechny jeho granty.
func (s *Sensors) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return apperr.NotFound("sensor with ID %s not found", id)
	}
	delete(s.byID, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.cascade != nil {
		s.cascade.deleteBySensor(id)
	}
	return nil
}

func (s *Sensors) ByExternalID(_ context.Context, sensorKey string) (model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sensor := range s.byID {
		if sensor.SensorID == sensorKey {
			return sensor, nil
		}
	}
	return model.Sensor{}, apperr.NotFound("sensor with sensor_id %s not found", sensorKey)
}

func (s *Sensors) ByInternalID(_ context.Context, id string) (model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensor, ok := s.byID[id]
	if !ok {
		return model.Sensor{}, apperr.NotFound("sensor with ID %s not found", id)
	}
	return sensor, nil
}

func (s *Sensors) ByCompany(_ context.Context, companyID string) ([]model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Sensor, 0)
	for _, id := range s.order {
		if sensor := s.byID[id]; sensor.CompanyID == companyID {
			out = append(out, sensor)
		}
	}
	return out, nil
}

func (s *Sensors) All(_ context.Context) ([]model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Sensor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// --- Access ---

type grantKey struct{ sensorID, userID string }

// Access drží granty indexované dvojicí (sensor, user).
type Access struct {
	mu     sync.RWMutex
	grants map[grantKey]model.AccessGrant
}

func NewAccess() *Access {
	return &Access{grants: make(map[grantKey]model.AccessGrant)}
}

func (a *Access) Grant(_ context.Context, g model.AccessGrant) (model.AccessGrant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := grantKey{g.SensorID, g.UserID}
	if _, exists := a.grants[k]; exists {
		return model.AccessGrant{}, apperr.Conflict("access for user %s to sensor %s already defined", g.UserID, g.SensorID)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	a.grants[k] = g
	return g, nil
}

func (a *Access) Revoke(_ context.Context, sensorID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := grantKey{sensorID, userID}
	if _, exists := a.grants[k]; !exists {
		return apperr.NotFound("no access defined for user %s to sensor %s", userID, sensorID)
	}
	delete(a.grants, k)
	return nil
}

func (a *Access) Get(_ context.Context, sensorID, userID string) (model.AccessGrant, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	g, ok := a.grants[grantKey{sensorID, userID}]
	if !ok {
		return model.AccessGrant{}, apperr.NotFound("no access defined for user %s to sensor %s", userID, sensorID)
	}
	return g, nil
}

func (a *Access) ListByUser(_ context.Context, userID string) ([]model.AccessGrant, error) {
	return a.list(func(g model.AccessGrant) bool { return g.UserID == userID }), nil
}

func (a *Access) ListBySensor(_ context.Context, sensorID string) ([]model.AccessGrant, error) {
	return a.list(func(g model.AccessGrant) bool { return g.SensorID == sensorID }), nil
}

func (a *Access) list(match func(model.AccessGrant) bool) []model.AccessGrant {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.AccessGrant, 0)
	for _, g := range a.grants {
		if match(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (a *Access) deleteBySensor(sensorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.grants {
		if k.sensorID == sensorID {
			delete(a.grants, k)
		}
	}
}

// --- AccessLog ---

// AccessLog je append-only seznam auditních záznamů.
type AccessLog struct {
	mu      sync.RWMutex
	entries []model.AccessLogEntry
}

func NewAccessLog() *AccessLog { return &AccessLog{} }

func (l *AccessLog) Record(_ context.Context, userID, sensorKey, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.AccessLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		SensorID:  sensorKey,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (l *AccessLog) ByUser(_ context.Context, userID string) ([]model.AccessLogEntry, error) {
	return l.filter(func(e model.AccessLogEntry) bool { return e.UserID == userID }), nil
}

func (l *AccessLog) BySensor(_ context.Context, sensorKey string) ([]model.AccessLogEntry, error) {
	return l.filter(func(e model.AccessLogEntry) bool { return e.SensorID == sensorKey }), nil
}

func (l *AccessLog) All(_ context.Context) ([]model.AccessLogEntry, error) {
	return l.filter(func(model.AccessLogEntry) bool { return true }), nil
}

// filter vrací záznamy od nejnovějšího.
func (l *AccessLog) filter(match func(model.AccessLogEntry) bool) []model.AccessLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.AccessLogEntry, 0)
	for i := len(l.entries) - 1; i >= 0; i-- {
		if match(l.entries[i]) {
			out = append(out, l.entries[i])
		}
	}
	return out
}
