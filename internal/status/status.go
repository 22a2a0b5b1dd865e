// Package status odvozuje zdravotní stav senzoru z posledního měření a prahových hodnot.
package status

import "fmt"

// Level je úroveň stavu senzoru.
type Level string

const (
	LevelNormal  Level = "normal"
	LevelWarning Level = "warning"
	LevelAlert   Level = "alert"
	LevelUnknown Level = "unknown"
)

// MetricStatus je stav jedné veličiny (teplota nebo vlhkost).
type MetricStatus struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Status je výsledek klasifikace. Neukládá se, vždy se počítá znovu.
type Status struct {
	Level             Level         `json:"level"`
	Message           string        `json:"message"`
	TemperatureStatus *MetricStatus `json:"temperatureStatus,omitempty"`
	HumidityStatus    *MetricStatus `json:"humidityStatus,omitempty"`
}

// Range jsou meze jedné veličiny.
// Pásma se nemusí vnořovat: s výchozími prahy je teplota 20°C mimo varovné pásmo, tedy alert.
type Range struct {
	MinNormal  float64 `json:"minNormal" yaml:"minNormal"`
	MaxNormal  float64 `json:"maxNormal" yaml:"maxNormal"`
	MinWarning float64 `json:"minWarning" yaml:"minWarning"`
	MaxWarning float64 `json:"maxWarning" yaml:"maxWarning"`
}

// Thresholds drží meze pro obě veličiny.
type Thresholds struct {
	Temperature Range `json:"temperature" yaml:"temperature"`
	Humidity    Range `json:"humidity" yaml:"humidity"`
}

// DefaultThresholds jsou meze, se kterými platforma běží, pokud není zadán soubor.
var DefaultThresholds = Thresholds{
	Temperature: Range{MinNormal: 18, MaxNormal: 30, MinWarning: 26, MaxWarning: 38},
	Humidity:    Range{MinNormal: 40, MaxNormal: 60, MinWarning: 30, MaxWarning: 70},
}

// Level klasifikuje jednu hodnotu: mimo varovné pásmo je alert,
// mimo normální pásmo warning, jinak normal.
func (r Range) Level(v float64) Level {
	if v < r.MinWarning || v > r.MaxWarning {
		return LevelAlert
	}
	if v < r.MinNormal || v > r.MaxNormal {
		return LevelWarning
	}
	return LevelNormal
}

// Classify je čistá funkce: stejné vstupy vždy dají stejný výstup.
// Nil hodnota znamená, že veličina v měření chybí.
func Classify(temperature, humidity *float64, t Thresholds) Status {
	st := Status{Level: LevelUnknown, Message: "Sensor status unknown"}

	if temperature != nil {
		st.TemperatureStatus = temperatureStatus(*temperature, t.Temperature)
	}
	if humidity != nil {
		st.HumidityStatus = humidityStatus(*humidity, t.Humidity)
	}

	switch {
	case st.TemperatureStatus != nil && st.HumidityStatus != nil:
		st.Level = worst(st.TemperatureStatus.Level, st.HumidityStatus.Level)
		switch st.Level {
		case LevelAlert:
			st.Message = "Critical: temperature or humidity at critical level"
		case LevelWarning:
			st.Message = "Warning: temperature or humidity outside normal range"
		default:
			st.Message = "All values within normal range"
		}
	case st.TemperatureStatus != nil:
		st.Level = st.TemperatureStatus.Level
		st.Message = st.TemperatureStatus.Message
	case st.HumidityStatus != nil:
		st.Level = st.HumidityStatus.Level
		st.Message = st.HumidityStatus.Message
	}

	return st
}

func temperatureStatus(v float64, r Range) *MetricStatus {
	ms := &MetricStatus{Level: r.Level(v)}
	switch ms.Level {
	case LevelAlert:
		ms.Message = fmt.Sprintf("Temperature at critical level: %g°C", v)
	case LevelWarning:
		ms.Message = fmt.Sprintf("Temperature outside normal range: %g°C", v)
	default:
		ms.Message = "Temperature within normal range"
	}
	return ms
}

func humidityStatus(v float64, r Range) *MetricStatus {
	ms := &MetricStatus{Level: r.Level(v)}
	switch ms.Level {
	case LevelAlert:
		ms.Message = fmt.Sprintf("Humidity at critical level: %g%%", v)
	case LevelWarning:
		ms.Message = fmt.Sprintf("Humidity outside normal range: %g%%", v)
	default:
		ms.Message = "Humidity within normal range"
	}
	return ms
}

func worst(a, b Level) Level {
	if a == LevelAlert || b == LevelAlert {
		return LevelAlert
	}
	if a == LevelWarning || b == LevelWarning {
		return LevelWarning
	}
	return LevelNormal
}
