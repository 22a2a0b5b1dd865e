package main

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MqttLogWriter implementuje io.Writer: každý zapsaný řádek logu odešle do MQTT.
type MqttLogWriter struct {
	client mqtt.Client
	topic  string
}

// NewMqttLogWriter vytvoří writer pro topic "logs/<serviceName>".
func NewMqttLogWriter(client mqtt.Client, serviceName string) *MqttLogWriter {
	return &MqttLogWriter{client: client, topic: "logs/" + serviceName}
}

// Write neblokuje: na potvrzení (Token.Wait) nečekáme, logování nesmí zdržovat ingest.
// Dokud klient není připojený, řádky se zahazují (stdout je má i tak).
func (w *MqttLogWriter) Write(p []byte) (int, error) {
	if !w.client.IsConnectionOpen() {
		return len(p), nil
	}

	// slog buffer po návratu recykluje, payload musíme zkopírovat
	payload := make([]byte, len(p))
	copy(payload, p)
	w.client.Publish(w.topic, 0, false, payload)

	return len(p), nil
}
