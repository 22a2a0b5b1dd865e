package ingest

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultPrefix je kořen MQTT topiců platformy.
const DefaultPrefix = "patrion"

// Router rozděluje MQTT zprávy podle topicu:
//
//	<prefix>/sensors/<sensor_id>          -> Ingestor
//	<prefix>/companies/<company_id>/<ev>  -> jen log
//	<prefix>/system/<ev>                  -> jen log
type Router struct {
	prefix   string
	ingestor *Ingestor
	logger   *slog.Logger
}

func NewRouter(prefix string, ingestor *Ingestor, logger *slog.Logger) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Router{prefix: strings.TrimSuffix(prefix, "/"), ingestor: ingestor, logger: logger}
}

// Topics vrací filtry, které je potřeba odebírat.
func (r *Router) Topics() []string {
	return []string{
		r.prefix + "/sensors/+",
		r.prefix + "/companies/+/+",
		r.prefix + "/system/+",
	}
}

// Handle zpracuje jednu zprávu. Vrací Result jen pro senzorová data, jinak nil.
func (r *Router) Handle(ctx context.Context, topic string, payload []byte) *Result {
	rest, ok := strings.CutPrefix(topic, r.prefix+"/")
	if !ok {
		r.logger.Debug("Ignoruji zprávu mimo prefix", "topic", topic)
		return nil
	}
	parts := strings.Split(rest, "/")

	switch {
	case parts[0] == "sensors" && len(parts) == 2 && parts[1] != "":
		res := r.ingestor.Ingest(ctx, topic, payload)
		if res.Success && res.SensorID != parts[1] {
			r.logger.Warn("sensor_id v payloadu neodpovídá topicu", "topic", topic, "sensor_id", res.SensorID)
		}
		return &res
	case parts[0] == "companies" && len(parts) == 3:
		r.logger.Info("Firemní událost", "company_id", parts[1], "event", parts[2])
	case parts[0] == "system" && len(parts) == 2:
		r.logger.Info("Systémová událost", "event", parts[1], "payload", string(payload))
	default:
		r.logger.Debug("Neznámý topic", "topic", topic)
	}
	return nil
}
