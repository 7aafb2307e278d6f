package gateway

import (
	"context"
	"encoding/json"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/ota"
)

// Commands the backend may send on the command topic.
const (
	CommandCollectVCI       = "collect_vci"
	CommandCollectReadiness = "collect_readiness"
	CommandStartOTA         = "start_ota"
	CommandCancelOTA        = "cancel_ota"
	CommandShutdown         = "shutdown"
)

// Command is the envelope on the command topic. A start_ota command
// carries its campaign inline.
type Command struct {
	Command  string          `json:"command"`
	Campaign json.RawMessage `json:"campaign,omitempty"`
}

func (g *Gateway) handleCommand(ctx context.Context, topic string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		g.logger.Warn("Discarding malformed command", "reason", err.Error())
		return
	}

	g.logger.Info("Command received", "command", cmd.Command)

	switch cmd.Command {
	case CommandCollectVCI:
		g.collectAndPublishVCI(ctx)

	case CommandCollectReadiness:
		g.collectAndPublishReadiness(ctx)

	case CommandStartOTA:
		campaign, err := ota.ParseCampaign(cmd.Campaign)
		if err != nil {
			g.logger.Warn("start_ota command without a usable campaign", "reason", err.Error())
			return
		}
		g.startCampaign(ctx, campaign)

	case CommandCancelOTA:
		if !g.deps.Orchestrator.Cancel() {
			g.logger.Info("No campaign in flight to cancel")
		}

	case CommandShutdown:
		g.logger.Info("Shutdown requested by backend")
		g.cancel()

	default:
		g.logger.Warn("Unknown command ignored", "command", cmd.Command)
	}
}

// collectAndPublishVCI gathers the vehicle configuration and delivers
// it over MQTT, plus the HTTP backend when one is configured.
func (g *Gateway) collectAndPublishVCI(ctx context.Context) {
	report, err := g.deps.VCI.Collect(ctx)
	if err != nil {
		g.logger.Error(err, "VCI collection failed")
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		g.logger.Error(err, "VCI report not serializable")
		return
	}
	if err := g.deps.MQTT.Publish(ctx, g.deps.Topics.VCI(g.cfg.VIN), 1, false, payload); err != nil {
		g.logger.Error(err, "VCI report not published")
	}

	if g.deps.Cloud != nil {
		if err := g.deps.Cloud.PostVCI(ctx, g.cfg.VIN, report); err != nil {
			g.logger.Warn("VCI report not uploaded", "reason", err.Error())
		}
	}
}

func (g *Gateway) collectAndPublishReadiness(ctx context.Context) {
	report, err := g.deps.Readiness.Collect(ctx)
	if err != nil {
		g.logger.Error(err, "Readiness collection failed")
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		g.logger.Error(err, "Readiness report not serializable")
		return
	}
	if err := g.deps.MQTT.Publish(ctx, g.deps.Topics.Readiness(g.cfg.VIN), 1, false, payload); err != nil {
		g.logger.Error(err, "Readiness report not published")
	}

	if g.deps.Cloud != nil {
		if err := g.deps.Cloud.PostReadiness(ctx, g.cfg.VIN, report); err != nil {
			g.logger.Warn("Readiness report not uploaded", "reason", err.Error())
		}
	}
}
