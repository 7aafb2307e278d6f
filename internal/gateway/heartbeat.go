package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/metrics"
)

// Heartbeat is the periodic liveness document.
type Heartbeat struct {
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	OTAState      string    `json:"ota_state"`
	VehicleState  string    `json:"vehicle_state"`
}

func (g *Gateway) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.publishHeartbeat(ctx)
		}
	}
}

func (g *Gateway) publishHeartbeat(ctx context.Context) {
	hb := Heartbeat{
		DeviceID:      g.cfg.VIN,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(g.started).Seconds()),
		OTAState:      g.deps.Orchestrator.State(),
		VehicleState:  string(g.deps.Tracker.Current()),
	}

	payload, err := json.Marshal(hb)
	if err != nil {
		g.logger.Error(err, "Heartbeat not serializable")
		return
	}
	if err := g.deps.MQTT.Publish(ctx, g.deps.Topics.Heartbeat(g.cfg.VIN), 0, false, payload); err != nil {
		g.logger.Warn("Heartbeat not published", "reason", err.Error())
		return
	}
	metrics.HeartbeatsTotal.Inc()
}
