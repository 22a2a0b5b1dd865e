package hub

import (
	"context"
	"encoding/json"
	"strings"

	"tenant-telemetry/internal/model"
)

// Dispatch zpracuje jednu zprávu od klienta a odpoví zprávou typu result.
func (h *Hub) Dispatch(ctx context.Context, c *Conn, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.push(c, resultMessage{Type: TypeResult, Op: "unknown", Message: "invalid message: " + err.Error()})
		return
	}
	req.SensorID = strings.TrimSpace(req.SensorID)

	res := resultMessage{Type: TypeResult, RequestID: req.RequestID, Op: req.Type}
	if req.SensorID == "" && req.Type != "" {
		res.Message = "sensorId is required"
		h.push(c, res)
		return
	}

	switch req.Type {
	case TypeSubscribe:
		if err := h.Subscribe(ctx, c, req.SensorID); err != nil {
			res.Message = err.Error()
		} else {
			res.Success = true
			res.Message = "subscribed to " + req.SensorID
		}

	case TypeUnsubscribe:
		h.Unsubscribe(c, req.SensorID)
		res.Success = true
		res.Message = "unsubscribed from " + req.SensorID

	case TypeGetData:
		readings, err := h.GetData(ctx, c, req.SensorID, req.Limit)
		if err != nil {
			res.Message = err.Error()
			break
		}
		if readings == nil {
			readings = []model.Reading{}
		}
		res.Success = true
		res.Data = readings

	default:
		res.Message = "unknown message type: " + req.Type
	}

	h.push(c, res)
}
