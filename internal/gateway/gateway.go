// Package gateway runs the vehicle mobile gateway daemon: MQTT
// session, command dispatch, heartbeat, boot confirmation and the
// diagnostics HTTP server.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/cloud"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/ota"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/partition"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/readiness"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/vci"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/vehiclestate"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/mqtt"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/mqtt/topic"
)

// Config holds the daemon's identity and loop settings.
type Config struct {
	VIN   string
	Model string

	HeartbeatInterval time.Duration
	HTTPAddr          string
}

// Dependencies are the wired components the daemon orchestrates.
type Dependencies struct {
	MQTT         mqtt.Client
	Topics       *topic.Builder
	Orchestrator *ota.Orchestrator
	VCI          *vci.Collector
	Readiness    *readiness.Collector
	Partitions   *partition.Manager
	Cloud        *cloud.Client
	Tracker      *vehiclestate.Tracker
}

// Gateway is the daemon.
type Gateway struct {
	cfg  Config
	deps Dependencies

	started time.Time
	cancel  context.CancelFunc

	logger log.Logger
}

// New assembles the daemon. All dependencies except Cloud and
// Partitions are required.
func New(cfg Config, deps Dependencies) (*Gateway, error) {
	if cfg.VIN == "" {
		return nil, fmt.Errorf("gateway: VIN is required")
	}
	if deps.MQTT == nil || deps.Topics == nil || deps.Orchestrator == nil ||
		deps.VCI == nil || deps.Readiness == nil || deps.Tracker == nil {
		return nil, fmt.Errorf("gateway: missing required dependency")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	return &Gateway{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithName("gateway"),
	}, nil
}

// Run executes the daemon until ctx is canceled or a shutdown command
// arrives.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.cancel = cancel
	g.started = time.Now()

	if err := g.confirmBoot(); err != nil {
		return err
	}

	if err := g.deps.MQTT.Start(ctx); err != nil {
		return fmt.Errorf("gateway: start mqtt session: %w", err)
	}
	defer g.deps.MQTT.Disconnect(context.Background())

	if err := g.deps.MQTT.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("gateway: await mqtt connection: %w", err)
	}

	if err := g.subscribe(ctx); err != nil {
		return err
	}

	// Connectivity is established, so the boot is considered healthy.
	if g.deps.Partitions != nil {
		if err := g.deps.Partitions.MarkBootSuccess(); err != nil {
			g.logger.Warn("Boot confirmation not persisted", "reason", err.Error())
		}
	}
	if g.deps.Cloud != nil {
		if err := g.deps.Cloud.Health(ctx); err != nil {
			g.logger.Warn("Backend health check failed", "reason", err.Error())
		}
	}

	g.collectAndPublishVCI(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return g.heartbeatLoop(ctx) })
	group.Go(func() error { return g.serveDiagnostics(ctx) })

	g.logger.Info("Gateway running", "vin", g.cfg.VIN)
	return group.Wait()
}

// confirmBoot records the boot attempt and, when too many boots went
// unconfirmed, rolls the boot target back. The reboot into the
// fallback slot is left to the system.
func (g *Gateway) confirmBoot() error {
	if g.deps.Partitions == nil {
		return nil
	}

	count, err := g.deps.Partitions.RecordBootAttempt()
	if err != nil {
		return fmt.Errorf("gateway: record boot attempt: %w", err)
	}
	g.logger.Info("Boot attempt recorded", "count", count)

	if g.deps.Partitions.NeedsRollback() {
		g.logger.Warn("Boot attempt limit reached, rolling back")
		if err := g.deps.Partitions.Rollback(); err != nil {
			return fmt.Errorf("gateway: rollback: %w", err)
		}
		g.logger.Warn("Boot target rolled back, reboot required",
			"target", g.deps.Partitions.Active().String())
	}
	return nil
}

func (g *Gateway) subscribe(ctx context.Context) error {
	commandTopic := g.deps.Topics.Command(g.cfg.VIN)
	if err := g.deps.MQTT.Subscribe(ctx, commandTopic, 1, g.handleCommand); err != nil {
		return fmt.Errorf("gateway: subscribe %s: %w", commandTopic, err)
	}

	campaignTopic := g.deps.Topics.Campaign(g.cfg.VIN)
	if err := g.deps.MQTT.Subscribe(ctx, campaignTopic, 1, g.handleCampaign); err != nil {
		return fmt.Errorf("gateway: subscribe %s: %w", campaignTopic, err)
	}

	metadataTopic := g.deps.Topics.Metadata(g.cfg.VIN)
	if err := g.deps.MQTT.Subscribe(ctx, metadataTopic, 1, g.handleMetadata); err != nil {
		return fmt.Errorf("gateway: subscribe %s: %w", metadataTopic, err)
	}
	return nil
}

// handleMetadata logs pushed package metadata. The backend sends it
// ahead of a campaign so operators can inspect what is queued.
func (g *Gateway) handleMetadata(ctx context.Context, topic string, payload []byte) {
	var meta map[string]any
	if err := json.Unmarshal(payload, &meta); err != nil {
		g.logger.Warn("Discarding malformed metadata push", "reason", err.Error())
		return
	}
	g.logger.Info("Package metadata received", "metadata", meta)
}

func (g *Gateway) handleCampaign(ctx context.Context, topic string, payload []byte) {
	campaign, err := ota.ParseCampaign(payload)
	if err != nil {
		g.logger.Warn("Discarding malformed campaign", "reason", err.Error())
		return
	}
	g.startCampaign(ctx, campaign)
}

// startCampaign runs a campaign in the background, gated on the
// vehicle state. The tracker holds ota_active for the duration.
func (g *Gateway) startCampaign(ctx context.Context, campaign *ota.Campaign) {
	if !g.deps.Tracker.AllowsOTA() {
		g.logger.Warn("Campaign refused by vehicle state",
			"campaign", campaign.CampaignID, "state", string(g.deps.Tracker.Current()))
		return
	}

	previous := g.deps.Tracker.Current()
	_ = g.deps.Tracker.Set(vehiclestate.StateOTAActive)

	go func() {
		defer func() { _ = g.deps.Tracker.Set(previous) }()
		if err := g.deps.Orchestrator.Run(ctx, campaign); err != nil {
			g.logger.Error(err, "Campaign run failed", "campaign", campaign.CampaignID)
		}
	}()
}
