package hub

import (
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/status"
)

// Typy zpráv klient -> server.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeGetData     = "getData"
)

// Typy zpráv server -> klient.
const (
	TypeRegistrySnapshot    = "registrySnapshot"
	TypeRegistryUpdate      = "registryUpdate"
	TypeReading             = "reading"
	TypeSubscriptionRevoked = "subscriptionRevoked"
	TypeResult              = "result"
)

// Request je obálka požadavku od klienta.
type Request struct {
	Type      string `json:"type"`
	SensorID  string `json:"sensorId"`
	Limit     int    `json:"limit,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// SensorView je senzor obohacený o poslední měření a jeho stav.
type SensorView struct {
	model.Sensor
	LastReading *model.Reading `json:"lastReading,omitempty"`
	Status      status.Status  `json:"status"`
}

type registryMessage struct {
	Type    string       `json:"type"`
	Sensors []SensorView `json:"sensors"`
}

type readingMessage struct {
	Type     string        `json:"type"`
	SensorID string        `json:"sensorId"`
	Reading  model.Reading `json:"reading"`
	Status   status.Status `json:"status"`
}

type revokedMessage struct {
	Type     string `json:"type"`
	SensorID string `json:"sensorId"`
	Reason   string `json:"reason"`
}

type resultMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Op        string `json:"op"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}
