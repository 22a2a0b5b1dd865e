package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
)

// Klíče, které mají vlastní sloupec. Vše ostatní končí v additional_data.
const (
	keySensorID    = "sensor_id"
	keyTimestamp   = "timestamp"
	keyTemperature = "temperature"
	keyHumidity    = "humidity"
)

// Rozsah timestampu: roky 1 až 9999 (UTC). Mimo něj time.Time neumí JSON
// a převod na milisekundy by přetekl int64.
const (
	minEpochSeconds = -62135596800 // 0001-01-01T00:00:00Z
	maxEpochSeconds = 253402300799 // 9999-12-31T23:59:59Z
)

// Parse převede volně typovaný JSON ze zařízení na Reading (bez ID a CreatedAt).
//
// Povinné: sensor_id (neprázdný string), timestamp (epoch sekundy, číslo nebo číselný string).
// Volitelné: temperature, humidity (číslo nebo číselný string, null = chybí).
// Chyby jsou třídy apperr.ErrValidation.
func Parse(payload []byte) (model.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return model.Reading{}, apperr.Validation("payload není validní JSON: %v", err)
	}
	if dec.More() {
		return model.Reading{}, apperr.Validation("payload obsahuje víc než jednu JSON hodnotu")
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return model.Reading{}, apperr.Validation("payload musí být JSON objekt")
	}

	var rd model.Reading

	sid, ok := data[keySensorID].(string)
	if !ok || strings.TrimSpace(sid) == "" {
		return model.Reading{}, apperr.Validation("sensor_id chybí nebo není neprázdný string")
	}
	rd.SensorID = sid

	tsRaw, present := data[keyTimestamp]
	if !present || tsRaw == nil {
		return model.Reading{}, apperr.Validation("timestamp chybí")
	}
	secs, ok := toFloat(tsRaw)
	if !ok {
		return model.Reading{}, apperr.Validation("timestamp %v není číslo", tsRaw)
	}
	if secs < minEpochSeconds || secs > maxEpochSeconds {
		return model.Reading{}, apperr.Validation("timestamp %v je mimo rozsah let 1 až 9999", tsRaw)
	}
	rd.Timestamp = fromEpochSeconds(secs)

	if rd.Temperature, ok = optionalMetric(data, keyTemperature); !ok {
		return model.Reading{}, apperr.Validation("temperature %v není číslo", data[keyTemperature])
	}
	if rd.Humidity, ok = optionalMetric(data, keyHumidity); !ok {
		return model.Reading{}, apperr.Validation("humidity %v není číslo", data[keyHumidity])
	}

	for k, v := range data {
		switch k {
		case keySensorID, keyTimestamp, keyTemperature, keyHumidity:
			continue
		}
		if rd.AdditionalData == nil {
			rd.AdditionalData = make(map[string]any)
		}
		rd.AdditionalData[k] = plain(v)
	}

	return rd, nil
}

// optionalMetric: chybějící klíč nebo null je (nil, true), nečíselná hodnota je (nil, false).
func optionalMetric(data map[string]any, key string) (*float64, bool) {
	v, present := data[key]
	if !present || v == nil {
		return nil, true
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	return &f, true
}

// toFloat přijme JSON číslo nebo string s číslem. Bool, objekty, NaN a Inf odmítne.
func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		s := strings.TrimSpace(t)
		// ParseFloat bere i Go literály jako "1_000", zařízení posílají jen desítková čísla.
		if s == "" || strings.ContainsRune(s, '_') {
			return 0, false
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// fromEpochSeconds: sekundy -> čas v UTC s přesností na milisekundy.
func fromEpochSeconds(secs float64) time.Time {
	return time.UnixMilli(int64(math.Round(secs * 1000))).UTC()
}

// plain převede json.Number zpět na float64, aby additional_data vypadala
// stejně, jako kdyby prošla standardním json.Unmarshal.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = plain(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = plain(inner)
		}
		return t
	}
	return v
}
